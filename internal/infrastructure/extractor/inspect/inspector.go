package inspect

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

const (
	xmlSniffBytes      = 4 << 10
	xmlSniffElements   = 64
	DefaultMaxPDFBytes = 64 << 20
)

// Inspector reads cheap local facts about a file before it is routed.
type Inspector struct {
	maxPDFBytes int64
}

func New(maxPDFBytes int64) *Inspector {
	if maxPDFBytes <= 0 {
		maxPDFBytes = DefaultMaxPDFBytes
	}
	return &Inspector{maxPDFBytes: maxPDFBytes}
}

type xmlSignature struct {
	docType  domain.DocumentType
	parserID string
	match    func(name xml.Name) bool
}

var xmlSignatures = []xmlSignature{
	{
		docType:  domain.DocumentTypeBankTransactions,
		parserID: domain.ParserBankCAMT053,
		match: func(n xml.Name) bool {
			return n.Local == "BkToCstmrStmt" || n.Local == "BkToCstmrAcctRpt" || strings.Contains(n.Space, ":camt.05")
		},
	},
	{
		docType:  domain.DocumentTypeInvoices,
		parserID: domain.ParserInvoiceFacturae,
		match: func(n xml.Name) bool {
			return n.Local == "Facturae" || strings.Contains(strings.ToLower(n.Space), "facturae")
		},
	},
	{
		docType:  domain.DocumentTypeInvoices,
		parserID: domain.ParserInvoiceUBL,
		match: func(n xml.Name) bool {
			return strings.HasPrefix(n.Space, "urn:oasis:names:specification:ubl:schema:xsd:") &&
				(n.Local == "Invoice" || n.Local == "CreditNote")
		},
	},
	{
		docType:  domain.DocumentTypeInvoices,
		parserID: domain.ParserInvoiceCFDI,
		match: func(n xml.Name) bool {
			return n.Local == "Comprobante" && strings.Contains(n.Space, "sat.gob.mx/cfd")
		},
	},
}

// SniffXML looks at the first elements of an XML document for a known bank
// statement or e-invoice root. A document cut off by the sniff window is
// fine as long as a signature appeared before the cut.
func (i *Inspector) SniffXML(file domain.FileSource) (domain.DocumentType, string, error) {
	reader, err := file.Open()
	if err != nil {
		return domain.DocumentTypeUnknown, "", fmt.Errorf("open source file: %w", err)
	}
	defer reader.Close()

	dec := xml.NewDecoder(io.LimitReader(reader, xmlSniffBytes))
	dec.CharsetReader = charset.NewReaderLabel
	for seen := 0; seen < xmlSniffElements; {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		seen++
		for _, sig := range xmlSignatures {
			if sig.match(start.Name) {
				return sig.docType, sig.parserID, nil
			}
		}
	}
	return domain.DocumentTypeUnknown, "", domain.WrapError(domain.ErrInvalidInput, "sniff xml", fmt.Errorf("%s: no known document signature", file.Name()))
}

// PageCount reads the page tree of a PDF.
func (i *Inspector) PageCount(file domain.FileSource) (pages int, err error) {
	reader, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, i.maxPDFBytes+1))
	if err != nil {
		return 0, fmt.Errorf("read source file: %w", err)
	}
	if int64(len(raw)) > i.maxPDFBytes {
		return 0, fmt.Errorf("%s is larger than %d bytes", file.Name(), i.maxPDFBytes)
	}

	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("read pdf %s: %v", file.Name(), r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return 0, fmt.Errorf("read pdf %s: %w", file.Name(), err)
	}
	pages = doc.NumPage()
	if pages <= 0 {
		return 0, errors.New("pdf has no pages")
	}
	return pages, nil
}
