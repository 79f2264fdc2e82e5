// Package hooks implements the document mutation passes: anchor attachment,
// citation hyperlinking, cross-reference styling, and the bibliography style
// corrections (italic, dash, title case). Each hook self-registers with the
// pipeline registry during package initialization, so importing this package
// wires the full set.
package hooks

import (
	"strings"
	"unicode/utf8"
)

// runeOffset converts a byte offset in s to a rune offset.
func runeOffset(s string, byteOff int) int {
	return utf8.RuneCountInString(s[:byteOff])
}

// findRuneRange locates needle inside text and returns its rune extent.
func findRuneRange(text, needle string) (lo, hi int, ok bool) {
	if needle == "" {
		return 0, 0, false
	}
	i := strings.Index(text, needle)
	if i < 0 {
		return 0, 0, false
	}
	lo = runeOffset(text, i)
	return lo, lo + utf8.RuneCountInString(needle), true
}
