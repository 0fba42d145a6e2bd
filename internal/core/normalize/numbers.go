package normalize

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount parses a locale formatted number. Currency symbols and codes,
// spaces and thousands separators are stripped; the right-most of "." and ","
// is the decimal separator when both appear. A lone separator followed by
// exactly three digits is read as a thousands separator.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-', r == '−':
			negative = true
		case r == '+', r == '\'', unicode.IsSpace(r):
		case unicode.IsLetter(r), unicode.Is(unicode.Sc, r):
		default:
			return 0, false
		}
	}
	digits := b.String()
	if digits == "" || strings.Trim(digits, ".,") == "" {
		return 0, false
	}

	lastDot := strings.LastIndexByte(digits, '.')
	lastComma := strings.LastIndexByte(digits, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			digits = strings.ReplaceAll(digits, ".", "")
			digits = strings.Replace(digits, ",", ".", 1)
		} else {
			digits = strings.ReplaceAll(digits, ",", "")
		}
	case lastComma >= 0:
		digits = resolveSingleSeparator(digits, ",")
	case lastDot >= 0:
		digits = resolveSingleSeparator(digits, ".")
	}

	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

func resolveSingleSeparator(digits, sep string) string {
	if strings.Count(digits, sep) > 1 {
		return strings.ReplaceAll(digits, sep, "")
	}
	i := strings.Index(digits, sep)
	intPart, frac := digits[:i], digits[i+1:]
	if len(frac) == 3 && intPart != "" && strings.Trim(intPart, "0") != "" {
		return intPart + frac
	}
	return intPart + "." + frac
}
