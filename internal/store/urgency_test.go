package store

import (
	"testing"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
)

func TestEffectiveUrgency(t *testing.T) {
	cases := []struct {
		name      string
		service   models.Service
		requested bool
		want      bool
	}{
		{"requested and supported", models.Service{Name: "Retrait", SupportsUrgency: true}, true, true},
		{"requested but unsupported", models.Service{Name: "Retrait", SupportsUrgency: false}, true, false},
		{"not requested", models.Service{Name: "Retrait", SupportsUrgency: true}, false, false},
		{"urgence name forces urgent", models.Service{Name: "Consultation urgence", SupportsUrgency: true}, false, true},
		{"urgence name case insensitive", models.Service{Name: "URGENCES", SupportsUrgency: true}, false, true},
		{"urgence name but unsupported", models.Service{Name: "Urgence", SupportsUrgency: false}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveUrgency(tc.service, tc.requested); got != tc.want {
				t.Fatalf("EffectiveUrgency(%+v, %v) = %v, want %v", tc.service, tc.requested, got, tc.want)
			}
		})
	}
}
