// Package util holds small shared helpers.
package util

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// SanitizeEmail normalizes an email address for the auth provider: trims
// whitespace, lowercases, and strips zero-width/invisible format characters
// that ride along when addresses are pasted from chat apps.
func SanitizeEmail(email string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(email))

	for _, r := range email {
		// Unicode Cf covers ZWSP, ZWNJ, ZWJ, BOM and friends.
		if unicode.Is(unicode.Cf, r) {
			continue
		}
		cleaned.WriteRune(r)
	}

	return strings.ToLower(strings.TrimSpace(cleaned.String()))
}

// FormatDuration formats duration into human readable format (e.g., "1h30m", "5m10s", "45s").
func FormatDuration(duration time.Duration) string {
	duration = duration.Round(time.Second)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	}

	if duration < time.Hour {
		m := int(duration.Minutes())
		s := int(duration.Seconds()) % 60

		return fmt.Sprintf("%dm%ds", m, s)
	}

	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60

	return fmt.Sprintf("%dh%dm", h, m)
}
