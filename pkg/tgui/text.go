package tgui

import "unicode/utf8"

// Ellipsis is appended by TruncRunes when it cuts.
const Ellipsis = "..."

// TruncRunes returns s cut to at most n runes, followed by Ellipsis when cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + Ellipsis
		}
		count++
	}
	return s
}
