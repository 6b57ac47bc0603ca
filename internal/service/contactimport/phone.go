package contactimport

import (
	"strings"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses raw with defaultCountry applied to numbers lacking a
// country code. On failure the entry keeps the raw value with Valid=false.
func NormalizePhone(raw, defaultCountry string) domain.PhoneEntry {
	entry := domain.PhoneEntry{Raw: strings.TrimSpace(raw)}
	if entry.Raw == "" {
		return entry
	}
	region := strings.ToUpper(strings.TrimSpace(defaultCountry))
	num, err := phonenumbers.Parse(entry.Raw, region)
	if err != nil {
		return entry
	}
	if !phonenumbers.IsValidNumber(num) {
		return entry
	}
	entry.Normalized = phonenumbers.Format(num, phonenumbers.E164)
	entry.Valid = true
	return entry
}

// looksLikePhone is a cheap content test used when guessing columns of
// headerless files.
func looksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	digits := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case strings.ContainsRune("+-() .", c):
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}
