package stringutil

import (
	"bytes"
	"unicode"
)

// PascalToSnake converts a Go field name to a column name, keeping runs of
// capitals such as ID together.
func PascalToSnake(s string) string {
	var b bytes.Buffer

	for i, c := range s {
		if !unicode.IsUpper(c) {
			b.WriteRune(c)
			continue
		}

		if i > 0 && (unicode.IsLower(rune(s[i-1])) || (i+1 < len(s) && unicode.IsLower(rune(s[i+1])))) {
			b.WriteByte('_')
		}

		b.WriteRune(unicode.ToLower(c))
	}

	return b.String()
}
