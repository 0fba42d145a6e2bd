package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DocumentType is the closed set of canonical schemas rows are normalized into.
type DocumentType string

const (
	DocumentTypeUnknown          DocumentType = ""
	DocumentTypeProducts         DocumentType = "products"
	DocumentTypeInvoices         DocumentType = "invoices"
	DocumentTypeExpenses         DocumentType = "expenses"
	DocumentTypeBankTransactions DocumentType = "bank_transactions"
)

var documentTypes = []DocumentType{
	DocumentTypeProducts,
	DocumentTypeInvoices,
	DocumentTypeExpenses,
	DocumentTypeBankTransactions,
}

// DocumentTypes lists every supported document type.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(documentTypes))
	copy(out, documentTypes)
	return out
}

// ParseDocumentType accepts the canonical names and a few server spellings.
func ParseDocumentType(raw string) (DocumentType, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, "-", "_")
	switch v {
	case "products", "product", "catalog":
		return DocumentTypeProducts, nil
	case "invoices", "invoice":
		return DocumentTypeInvoices, nil
	case "expenses", "expense", "receipts", "receipt":
		return DocumentTypeExpenses, nil
	case "bank_transactions", "bank_transaction", "bank", "bank_statement":
		return DocumentTypeBankTransactions, nil
	}
	return DocumentTypeUnknown, WrapError(ErrInvalidInput, "parse document type", fmt.Errorf("unknown document type %q", raw))
}

func (t DocumentType) Valid() bool {
	for _, known := range documentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Parser ids known to this client. The server may report more.
const (
	ParserGenericCSV       = "csv_generic"
	ParserGenericXLSX      = "xlsx_generic"
	ParserBankCAMT053      = "bank_camt053"
	ParserBankCSV          = "bank_csv"
	ParserInvoiceFacturae  = "invoice_facturae"
	ParserInvoiceUBL       = "invoice_ubl"
	ParserInvoiceCFDI      = "invoice_cfdi"
	ParserOCRInvoice       = "ocr_invoice"
	ParserOCRReceipt       = "ocr_receipt"
	ParserOCRBankStatement = "ocr_bank_statement"
)

// RegisteredParsers returns the sorted list of parser ids an operator can pick.
func RegisteredParsers() []string {
	out := []string{
		ParserGenericCSV,
		ParserGenericXLSX,
		ParserBankCAMT053,
		ParserBankCSV,
		ParserInvoiceFacturae,
		ParserInvoiceUBL,
		ParserInvoiceCFDI,
		ParserOCRInvoice,
		ParserOCRReceipt,
		ParserOCRBankStatement,
	}
	sort.Strings(out)
	return out
}

type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

const (
	HighConfidence   = 0.8
	MediumConfidence = 0.6
)

func BandFor(confidence float64) ConfidenceBand {
	switch {
	case confidence >= HighConfidence:
		return BandHigh
	case confidence >= MediumConfidence:
		return BandMedium
	default:
		return BandLow
	}
}

type DecisionStep struct {
	Step       string        `json:"step"`
	At         time.Time     `json:"at"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

type ClassificationResult struct {
	SuggestedParser       string             `json:"suggested_parser"`
	SuggestedDocumentType DocumentType       `json:"suggested_document_type"`
	Confidence            float64            `json:"confidence"`
	MappingSuggestion     map[string]string  `json:"mapping_suggestion,omitempty"`
	DecisionLog           []DecisionStep     `json:"decision_log"`
	RequiresConfirmation  bool               `json:"requires_confirmation"`
	AvailableParsers      []string           `json:"available_parsers"`
	Probabilities         map[string]float64 `json:"probabilities,omitempty"`
	Provider              string             `json:"provider"`
}

func (r *ClassificationResult) Band() ConfidenceBand {
	return BandFor(r.Confidence)
}

// ColumnMapping is a saved mapping template owned by the server.
type ColumnMapping struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Mapping         map[string]string `json:"mapping"`
	FilenamePattern string            `json:"filename_pattern,omitempty"`
	UsageCount      int               `json:"usage_count"`
	LastUsedAt      *time.Time        `json:"last_used_at,omitempty"`
}
