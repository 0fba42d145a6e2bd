package normalize

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2/1/2006",
	"02/01/06",
	"20060102",
	"01/02/2006",
}

// NormalizeDate returns the ISO form of a date in a known layout. Day-first
// layouts are tried before month-first ones.
func NormalizeDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return s, false
}

// ParseDirection maps bank direction spellings to "debit" or "credit".
func ParseDirection(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debit", "d", "dbit", "dr", "cargo", "debe", "-", "withdrawal", "out", "salida", "adeudo":
		return DirectionDebit, true
	case "credit", "c", "crdt", "cr", "abono", "haber", "+", "deposit", "in", "entrada", "ingreso":
		return DirectionCredit, true
	}
	return "", false
}

const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)
