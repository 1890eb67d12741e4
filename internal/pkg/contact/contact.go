// Package contact normalizes and validates client contact information.
package contact

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is the region used to parse phone numbers written
// without a country prefix.
const DefaultRegion = "US"

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizePhone parses a phone number in any common format and
// returns it in E.164. Invalid or empty numbers return "".
// Callers store the empty string as "no phone on file" rather than
// rejecting the record.
func NormalizePhone(raw string) string {
	return NormalizePhoneRegion(raw, DefaultRegion)
}

// NormalizePhoneRegion is NormalizePhone with an explicit default region.
func NormalizePhoneRegion(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsValidNumber(num) {
		return ""
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}

// ValidEmail reports whether s looks like an email address. This is a
// shape check, not a deliverability check.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}
