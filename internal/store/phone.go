package store

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\+221\d{9}$`)

// NormalizePhone strips all whitespace and validates the Senegalese E.164
// form (+221 followed by nine digits).
func NormalizePhone(raw string) (string, error) {
	phone := strings.Join(strings.Fields(raw), "")
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}
