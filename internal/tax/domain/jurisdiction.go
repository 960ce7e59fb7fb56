package domain

import (
	"regexp"
	"strings"
)

var jurisdictionRe = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3})?$`)

// NormalizeJurisdiction upper-cases and trims a jurisdiction code.
func NormalizeJurisdiction(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJurisdiction reports whether code is an ISO country code with an
// optional subdivision, e.g. CA or CA-QC.
func ValidJurisdiction(code string) bool {
	return jurisdictionRe.MatchString(code)
}
