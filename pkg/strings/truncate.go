// Package strings holds text helpers shared by the command-line output.
package strings

import (
	"strings"
)

// MinTruncateLen is the smallest width Truncate will cut to. Anything narrower would
// leave no room for content next to the ellipsis.
const MinTruncateLen = 4

// Truncate renders s as a single line of at most maxLen runes. Runs of whitespace,
// including newlines from multi-line worker errors, collapse to one space, and a cut
// is marked with "...".
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
