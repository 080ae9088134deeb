package strutil

import "unicode/utf8"

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// TruncateWithMarker is Truncate followed by marker when s was cut.
func TruncateWithMarker(s string, n int, marker string) string {
	cut := Truncate(s, n)
	if len(cut) == len(s) {
		return s
	}
	return cut + marker
}
