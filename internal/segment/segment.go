// Package segment splits free text into the ordered units sent for
// classification.
package segment

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// boundary matches the whitespace after a sentence terminator. The
// terminator itself sits in a lookbehind so it stays with its sentence.
var boundary = regexp2.MustCompile(`(?<=[.!?।])\s+`, regexp2.None)

// Segment splits text on line breaks and then on sentence boundaries.
// Units are trimmed, empty units are dropped and input order is kept.
func Segment(text string) []string {
	units := []string{}
	for _, line := range strings.Split(text, "\n") {
		for _, s := range splitLine(line) {
			if s = strings.TrimSpace(s); s != "" {
				units = append(units, s)
			}
		}
	}
	return units
}

func splitLine(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	runes := []rune(line)
	var parts []string
	start := 0

	m, err := boundary.FindRunesMatch(runes)
	for m != nil && err == nil {
		parts = append(parts, string(runes[start:m.Index]))
		start = m.Index + m.Length
		m, err = boundary.FindNextMatch(m)
	}
	// On a match error the remainder stays one unit.
	return append(parts, string(runes[start:]))
}

// Join is the inverse used when units are presented back as text: one unit
// per line. Segment(Join(units)) returns units unchanged.
func Join(units []string) string {
	return strings.Join(units, "\n")
}
