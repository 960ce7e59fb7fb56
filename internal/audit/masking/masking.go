// Package masking redacts processor references before they reach the audit
// trail.
package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are snapshot fields that hold processor references.
var SensitiveKeys = map[string]struct{}{
	"payment_method_ref":    {},
	"external_customer_ref": {},
}

// Reference keeps the processor type prefix and the last four characters,
// e.g. pm_1Nv0abcd1234 becomes pm_****1234. References of four characters
// or fewer keep nothing but the prefix.
func Reference(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	var prefix string
	if idx := strings.LastIndex(value, "_"); idx >= 0 && idx < len(value)-1 {
		prefix, value = value[:idx+1], value[idx+1:]
	}
	if len(value) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + value[len(value)-4:]
}

// Snapshot returns a copy of snapshot with every sensitive string field
// passed through Reference. The input is not modified.
func Snapshot(snapshot map[string]any) map[string]any {
	if snapshot == nil {
		return nil
	}
	out := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		if _, ok := SensitiveKeys[key]; ok {
			if str, ok := value.(string); ok {
				value = Reference(str)
			}
		}
		out[key] = value
	}
	return out
}
