package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
	prefixRe = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)
)

const DefaultInvoiceNumberTemplate = "{PREFIX}-{YYYY}-{MM}-{SEQ5}"

const DefaultPrefix = "NS"

// ValidPrefix reports whether prefix can be embedded in an invoice number.
func ValidPrefix(prefix string) bool {
	return prefixRe.MatchString(prefix)
}

// FormatInvoiceNumber renders an invoice number from template for a sequence
// value allocated in the month of issuedAt. Date tokens are taken in UTC,
// the same calendar the sequence counter is keyed by.
//
// Sequences wider than the padding are printed in full rather than truncated.
func FormatInvoiceNumber(
	template string,
	prefix string,
	issuedAt time.Time,
	seq int64,
) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	if strings.Contains(template, "{PREFIX}") && !ValidPrefix(prefix) {
		return "", fmt.Errorf("invalid invoice prefix: %q", prefix)
	}

	issuedAt = issuedAt.UTC()
	out := template

	out = strings.ReplaceAll(out, "{PREFIX}", prefix)
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))

	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// YearMonth is the sequence partition key for t, e.g. 2025-10.
func YearMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}
