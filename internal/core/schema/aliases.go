package schema

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

//go:embed aliases.yaml
var defaultAliases []byte

// AliasTable maps folded header spellings to canonical field names, per
// document type.
type AliasTable struct {
	index map[domain.DocumentType]map[string]string
}

// DefaultAliases returns the embedded alias table.
func DefaultAliases() *AliasTable {
	table, err := decodeAliases(defaultAliases)
	if err != nil {
		panic(fmt.Sprintf("embedded alias table: %v", err))
	}
	return table
}

// LoadAliases reads an alias table file. An empty path yields the embedded
// default.
func LoadAliases(path string) (*AliasTable, error) {
	if path == "" {
		return DefaultAliases(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alias table: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read alias table: %w", err)
	}
	return decodeAliases(raw)
}

func decodeAliases(raw []byte) (*AliasTable, error) {
	var doc map[string]map[string][]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode alias table: %w", err)
	}

	table := &AliasTable{index: make(map[domain.DocumentType]map[string]string, len(doc))}
	for rawType, byField := range doc {
		docType, err := domain.ParseDocumentType(rawType)
		if err != nil {
			return nil, err
		}
		idx := make(map[string]string)
		for field, spellings := range byField {
			if _, ok := Lookup(docType, field); !ok {
				return nil, domain.WrapError(domain.ErrInvalidInput, "decode alias table", fmt.Errorf("%s has no field %q", docType, field))
			}
			for _, s := range append([]string{field}, spellings...) {
				folded := Fold(s)
				if folded == "" {
					continue
				}
				if prev, ok := idx[folded]; ok && prev != field {
					return nil, domain.WrapError(domain.ErrInvalidInput, "decode alias table", fmt.Errorf("%s alias %q claimed by %s and %s", docType, s, prev, field))
				}
				idx[folded] = field
			}
		}
		table.index[docType] = idx
	}
	return table, nil
}

// Resolve returns the canonical field a header stands for, by exact folded
// match.
func (t *AliasTable) Resolve(docType domain.DocumentType, header string) (string, bool) {
	if t == nil {
		return "", false
	}
	field, ok := t.index[docType][Fold(header)]
	return field, ok
}

// Spellings returns every folded spelling known for a document type, sorted.
func (t *AliasTable) Spellings(docType domain.DocumentType) []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.index[docType]))
	for s := range t.index[docType] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FieldFor returns the canonical field of an already folded spelling.
func (t *AliasTable) FieldFor(docType domain.DocumentType, folded string) string {
	if t == nil {
		return ""
	}
	return t.index[docType][folded]
}
