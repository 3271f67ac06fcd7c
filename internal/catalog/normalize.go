package catalog

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// NormalizeHeader canonicalises a CSV header cell: surrounding whitespace is
// trimmed, non-alphanumeric characters are stripped, and separator runs
// (whitespace or underscores) collapse to single underscores. "Product
// Display Name", "Product_Display_Name", and " Product  Display (Name) " all
// normalise to "Product_Display_Name".
func NormalizeHeader(cell string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(cell) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

// canonicalGUID lowercases well-formed GUIDs into their canonical hyphenated
// form and leaves anything unparseable as the trimmed original.
func canonicalGUID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return parsed.String()
}
