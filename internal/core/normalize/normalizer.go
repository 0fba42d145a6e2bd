// Package normalize turns mapped source rows into the canonical schema of one
// document type.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/schema"
)

// CanonicalRow holds the canonical fields of one row. Source values that did
// not resolve to a canonical field are kept verbatim in Extra.
type CanonicalRow struct {
	Fields map[string]any
	Extra  map[string]string
}

func (r CanonicalRow) String(field string) string {
	switch v := r.Fields[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Normalizer canonicalizes rows of one document type.
type Normalizer interface {
	DocumentType() domain.DocumentType
	// Normalize returns false when every canonical field of the row is empty.
	Normalize(row map[string]string) (CanonicalRow, bool)
	// DedupKey returns "" when the row lacks the fields its key is built from.
	DedupKey(row CanonicalRow) string
}

// For selects the normalizer of a document type.
func For(docType domain.DocumentType, aliases *schema.AliasTable) (Normalizer, error) {
	if aliases == nil {
		aliases = schema.DefaultAliases()
	}
	base := fieldNormalizer{docType: docType, aliases: aliases}
	switch docType {
	case domain.DocumentTypeProducts:
		return productNormalizer{base}, nil
	case domain.DocumentTypeInvoices:
		return invoiceNormalizer{base}, nil
	case domain.DocumentTypeExpenses:
		return expenseNormalizer{base}, nil
	case domain.DocumentTypeBankTransactions:
		return bankNormalizer{base}, nil
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "select normalizer", fmt.Errorf("unsupported document type %q", docType))
}

type fieldNormalizer struct {
	docType domain.DocumentType
	aliases *schema.AliasTable
}

func (n fieldNormalizer) DocumentType() domain.DocumentType { return n.docType }

func (n fieldNormalizer) normalize(row map[string]string) CanonicalRow {
	out := CanonicalRow{Fields: make(map[string]any), Extra: make(map[string]string)}
	for _, key := range sortedKeys(row) {
		value := strings.TrimSpace(row[key])
		if value == "" {
			continue
		}
		name, ok := n.aliases.Resolve(n.docType, key)
		if !ok {
			out.Extra[key] = value
			continue
		}
		if _, taken := out.Fields[name]; taken {
			out.Extra[key] = value
			continue
		}
		field, _ := schema.Lookup(n.docType, name)
		out.Fields[name] = convert(field, value)
	}
	return out
}

func convert(field schema.Field, value string) any {
	switch field.Kind {
	case schema.KindNumber:
		if v, ok := ParseAmount(value); ok {
			return v
		}
	case schema.KindDate:
		if v, ok := NormalizeDate(value); ok {
			return v
		}
	case schema.KindDirection:
		if v, ok := ParseDirection(value); ok {
			return v
		}
	}
	return value
}

func joinKey(parts ...string) string {
	for _, p := range parts {
		if p == "" {
			return ""
		}
	}
	return strings.Join(parts, "|")
}

type productNormalizer struct{ fieldNormalizer }

func (n productNormalizer) Normalize(row map[string]string) (CanonicalRow, bool) {
	out := n.normalize(row)
	return out, len(out.Fields) > 0
}

func (n productNormalizer) DedupKey(row CanonicalRow) string {
	if sku := strings.ToLower(row.String("sku")); sku != "" {
		return "sku:" + sku
	}
	if barcode := row.String("barcode"); barcode != "" {
		return "barcode:" + barcode
	}
	return ""
}

type invoiceNormalizer struct{ fieldNormalizer }

func (n invoiceNormalizer) Normalize(row map[string]string) (CanonicalRow, bool) {
	out := n.normalize(row)
	return out, len(out.Fields) > 0
}

func (n invoiceNormalizer) DedupKey(row CanonicalRow) string {
	return joinKey(strings.ToUpper(row.String("invoice_number")), row.String("issue_date"))
}

type expenseNormalizer struct{ fieldNormalizer }

func (n expenseNormalizer) Normalize(row map[string]string) (CanonicalRow, bool) {
	out := n.normalize(row)
	return out, len(out.Fields) > 0
}

func (n expenseNormalizer) DedupKey(row CanonicalRow) string {
	return joinKey(row.String("expense_date"), row.String("amount"), strings.ToLower(row.String("description")))
}
