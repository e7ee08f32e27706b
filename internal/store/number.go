package store

import (
	"fmt"
	"strings"
)

const (
	fallbackPrefix = "TCK"
	prefixMaxLen   = 4
	sequencePad    = 4
)

// TicketPrefix derives the display-number prefix from a company page name:
// uppercase, ASCII letters and digits only, truncated to four characters.
// Page names with no usable characters fall back to "TCK".
func TicketPrefix(pageName string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(pageName) {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			continue
		}
		b.WriteRune(r)
		if b.Len() == prefixMaxLen {
			break
		}
	}
	if b.Len() == 0 {
		return fallbackPrefix
	}
	return b.String()
}

// FormatTicketNumber renders a company sequence value as a display number,
// e.g. page "Boulangerie Ndiaye" with seq 7 becomes "BOUL0007".
func FormatTicketNumber(pageName string, seq int64) string {
	return fmt.Sprintf("%s%0*d", TicketPrefix(pageName), sequencePad, seq)
}
