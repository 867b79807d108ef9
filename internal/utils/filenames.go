package utils

import (
	"strings"
	"unicode"
)

// SanitizeFileName replaces every whitespace run with an underscore and drops
// characters that are not allowed in file names on common platforms.
func SanitizeFileName(name string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteRune('_')
			}
			inSpace = true
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
		inSpace = false
	}
	return b.String()
}
