// Package schema declares the canonical field set of every document type and
// the header alias tables used to reach it.
package schema

import (
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindDate
	KindDirection
)

type Field struct {
	Name string
	Kind FieldKind
	// Input fields may be mapped onto but are folded into other fields by the
	// normalizer and never appear in a canonical row.
	Input bool
}

var fields = map[domain.DocumentType][]Field{
	domain.DocumentTypeProducts: {
		{Name: "sku"},
		{Name: "name"},
		{Name: "description"},
		{Name: "category"},
		{Name: "barcode"},
		{Name: "unit"},
		{Name: "price", Kind: KindNumber},
		{Name: "cost", Kind: KindNumber},
		{Name: "stock", Kind: KindNumber},
		{Name: "tax_rate", Kind: KindNumber},
		{Name: "warehouse"},
	},
	domain.DocumentTypeInvoices: {
		{Name: "invoice_number"},
		{Name: "issue_date", Kind: KindDate},
		{Name: "due_date", Kind: KindDate},
		{Name: "counterparty_name"},
		{Name: "counterparty_tax_id"},
		{Name: "description"},
		{Name: "subtotal", Kind: KindNumber},
		{Name: "tax_amount", Kind: KindNumber},
		{Name: "total", Kind: KindNumber},
		{Name: "currency"},
	},
	domain.DocumentTypeExpenses: {
		{Name: "expense_date", Kind: KindDate},
		{Name: "description"},
		{Name: "category"},
		{Name: "amount", Kind: KindNumber},
		{Name: "tax_amount", Kind: KindNumber},
		{Name: "vendor"},
		{Name: "payment_method"},
		{Name: "currency"},
	},
	domain.DocumentTypeBankTransactions: {
		{Name: "value_date", Kind: KindDate},
		{Name: "booking_date", Kind: KindDate},
		{Name: "narrative"},
		{Name: "amount", Kind: KindNumber},
		{Name: "debit_amount", Kind: KindNumber, Input: true},
		{Name: "credit_amount", Kind: KindNumber, Input: true},
		{Name: "direction", Kind: KindDirection},
		{Name: "balance", Kind: KindNumber},
		{Name: "currency"},
		{Name: "reference"},
		{Name: "account"},
	},
}

// Fields returns the declared fields of a document type, input-only fields
// included, in declaration order.
func Fields(docType domain.DocumentType) []Field {
	src := fields[docType]
	out := make([]Field, len(src))
	copy(out, src)
	return out
}

// Targets returns the field names a header may be mapped to.
func Targets(docType domain.DocumentType) []string {
	out := make([]string, 0, len(fields[docType]))
	for _, f := range fields[docType] {
		out = append(out, f.Name)
	}
	return out
}

// Lookup returns the declared field with the given canonical name.
func Lookup(docType domain.DocumentType, name string) (Field, bool) {
	for _, f := range fields[docType] {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
