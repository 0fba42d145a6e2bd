package tabular

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

const DefaultMaxBytes int64 = 32 << 20

// Parser reads small delimited and spreadsheet files into a header row and
// one map per data row.
type Parser struct {
	maxBytes int64
}

func NewParser(maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Parser{maxBytes: maxBytes}
}

func (p *Parser) Parse(ctx context.Context, file domain.FileSource, kind domain.FileKind) ([]string, []map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	reader, err := file.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open source file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, p.maxBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read source file: %w", err)
	}
	if int64(len(raw)) > p.maxBytes {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "parse rows", fmt.Errorf("%s is larger than %d bytes", file.Name(), p.maxBytes))
	}

	var records [][]string
	switch kind {
	case domain.KindDelimited:
		records, err = readDelimited(raw, file.Name(), file.ContentType())
	case domain.KindSpreadsheet:
		records, err = readSpreadsheet(raw)
	default:
		return nil, nil, domain.WrapError(domain.ErrUnsupportedFileKind, "parse rows", fmt.Errorf("%s: kind %q has no row parser", file.Name(), kind))
	}
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "parse rows", fmt.Errorf("%s: %w", file.Name(), err))
	}

	headers, rows := tabulate(records)
	if len(headers) == 0 {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "parse rows", fmt.Errorf("%s has no header row", file.Name()))
	}
	return headers, rows, nil
}

// tabulate takes the first non-blank record as the header. Columns without a
// header name are kept as column_N.
func tabulate(records [][]string) ([]string, []map[string]string) {
	start := 0
	for start < len(records) && blank(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, nil
	}

	width := 0
	for _, rec := range records[start:] {
		width = max(width, len(rec))
	}
	headers := headerNames(records[start], width)

	rows := make([]map[string]string, 0, len(records)-start-1)
	for _, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func headerNames(rec []string, width int) []string {
	seen := make(map[string]int, width)
	out := make([]string, width)
	for i := range width {
		name := ""
		if i < len(rec) {
			name = strings.Join(strings.Fields(rec[i]), " ")
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		out[i] = name
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
