package store

import (
	"regexp"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
)

var urgencyNamePattern = regexp.MustCompile(`(?i)urgence`)

// EffectiveUrgency decides whether a new ticket is urgent. A service that
// does not support urgency always yields false. Services whose name mentions
// "urgence" mark every ticket urgent regardless of the request.
func EffectiveUrgency(service models.Service, requested bool) bool {
	if !service.SupportsUrgency {
		return false
	}
	return requested || urgencyNamePattern.MatchString(service.Name)
}
