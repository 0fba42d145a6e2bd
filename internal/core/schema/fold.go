package schema

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold reduces a header to its comparable form: lowercase, accents removed,
// every run of non-alphanumerics collapsed to a single "_".
func Fold(header string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, header)
	if err != nil {
		stripped = header
	}

	var b strings.Builder
	b.Grow(len(stripped))
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(stripped)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	return b.String()
}
