package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName rewrites a rendered book name into a filename that is
// safe on Linux, macOS, and the FAT storage of e-reader devices. Path
// separators, colons, and asterisks become dashes so numbering like
// "Vol 1/2" stays readable; the remaining reserved characters and control
// runes are dropped. Surrounding whitespace and trailing dots are trimmed.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*':
			b.WriteByte('-')
		case r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(strings.TrimSpace(b.String()), ". ")
}
