package typeutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most maxLen bytes plus "...". The cut never
// splits a rune, and invalid UTF-8 in s is replaced so the result can be
// carried in protobuf strings.
func Truncate(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "�")
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
