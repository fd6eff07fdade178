// Package utils provides shared helpers for logging, vectors, and text.
package utils

// Truncate returns s cut to at most maxLen runes, with "..." appended when cut.
// maxLen <= 0 returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
