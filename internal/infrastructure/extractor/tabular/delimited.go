package tabular

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

var delimiterCandidates = []rune{',', ';', '\t', '|'}

const sniffLines = 5

// readDelimited decodes the export to UTF-8 and splits it on the sniffed
// delimiter. Spreadsheet tools in es/fr/de locales write ';' separated files
// in windows-1252, so both are detected rather than assumed.
func readDelimited(raw []byte, name, contentType string) ([][]string, error) {
	text, enc, err := decodeText(raw, contentType)
	if err != nil {
		return nil, err
	}
	delim := sniffDelimiter(text)
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		delim = '\t'
	}
	slog.Debug("delimited_file_sniffed", "file", name, "charset", enc, "delimiter", string(delim))

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = delim != '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read delimited records: %w", err)
	}
	return records, nil
}

func decodeText(raw []byte, contentType string) (string, string, error) {
	enc, name, certain := charset.DetermineEncoding(raw, contentType)
	switch {
	case !certain && utf8.Valid(raw):
		name = "utf-8"
	case !certain && name == "utf-8":
		enc, name = charset.Lookup("windows-1252")
	}
	if name != "utf-8" {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", name, fmt.Errorf("decode %s text: %w", name, err)
		}
		raw = decoded
	}
	return strings.TrimPrefix(string(raw), "\ufeff"), name, nil
}

// sniffDelimiter picks the candidate that splits the first lines into the
// most consistent column count. Ties go to the wider header, then to
// candidate order.
func sniffDelimiter(text string) rune {
	lines := firstLines(text, sniffLines)
	if len(lines) == 0 {
		return ','
	}
	best, bestConsistent, bestWidth := ',', -1, 0
	for _, d := range delimiterCandidates {
		width := countOutsideQuotes(lines[0], d)
		if width == 0 {
			continue
		}
		consistent := 0
		for _, line := range lines[1:] {
			if countOutsideQuotes(line, d) == width {
				consistent++
			}
		}
		if consistent > bestConsistent || (consistent == bestConsistent && width > bestWidth) {
			best, bestConsistent, bestWidth = d, consistent, width
		}
	}
	return best
}

func firstLines(text string, n int) []string {
	var out []string
	for line := range strings.Lines(text) {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

func countOutsideQuotes(line string, d rune) int {
	count := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			count++
		}
	}
	return count
}
