package normalize

import (
	"math"
	"strconv"
	"strings"
)

type bankNormalizer struct{ fieldNormalizer }

// Normalize resolves the transaction direction and stores the amount as an
// unsigned magnitude. An explicit direction wins, then separate debit/credit
// columns, then the sign of the amount.
func (n bankNormalizer) Normalize(row map[string]string) (CanonicalRow, bool) {
	out := n.normalize(row)
	if len(out.Fields) == 0 {
		return out, false
	}

	debit, hasDebit := numberField(out, "debit_amount")
	credit, hasCredit := numberField(out, "credit_amount")
	amount, hasAmount := numberField(out, "amount")
	direction, hasDirection := out.Fields["direction"].(string)
	if hasDirection && direction != DirectionDebit && direction != DirectionCredit {
		hasDirection = false
	}

	switch {
	case hasDirection:
	case hasDebit && debit != 0:
		direction, hasDirection = DirectionDebit, true
	case hasCredit && credit != 0:
		direction, hasDirection = DirectionCredit, true
	case hasAmount && amount < 0:
		direction, hasDirection = DirectionDebit, true
	case hasAmount:
		direction, hasDirection = DirectionCredit, true
	}

	if !hasAmount {
		switch {
		case direction == DirectionDebit && hasDebit:
			amount, hasAmount = debit, true
		case direction == DirectionCredit && hasCredit:
			amount, hasAmount = credit, true
		}
	}

	for _, input := range []string{"debit_amount", "credit_amount"} {
		if v, ok := out.Fields[input]; ok {
			out.Extra[input] = formatValue(v)
			delete(out.Fields, input)
		}
	}
	if hasAmount {
		out.Fields["amount"] = math.Abs(amount)
	}
	if hasDirection {
		out.Fields["direction"] = direction
	}
	return out, true
}

func (n bankNormalizer) DedupKey(row CanonicalRow) string {
	key := joinKey(row.String("value_date"), row.String("amount"), row.String("direction"), strings.ToLower(row.String("narrative")))
	if key == "" {
		return ""
	}
	if ref := row.String("reference"); ref != "" {
		key += "|" + ref
	}
	return key
}

func numberField(row CanonicalRow, name string) (float64, bool) {
	v, ok := row.Fields[name].(float64)
	return v, ok
}

func formatValue(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
