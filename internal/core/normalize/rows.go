package normalize

import (
	"sort"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// FlagDuplicateKey marks a row whose dedup key collides with an earlier row of
// the same batch. Colliding rows are always sent; the server decides.
const FlagDuplicateKey = "dedup_collision"

type Row struct {
	Source      int
	Raw         map[string]string
	Canonical   CanonicalRow
	DuplicateOf int
}

func (r Row) Flags() []string {
	if r.DuplicateOf >= 0 {
		return []string{FlagDuplicateKey}
	}
	return nil
}

func (r Row) IngestRow() domain.IngestRow {
	return domain.IngestRow{
		Raw:        r.Raw,
		Normalized: r.Canonical.Fields,
		Flags:      r.Flags(),
	}
}

// NormalizeRows normalizes every row, dropping rows with no canonical value and
// flagging dedup collisions against the first row carrying the same key.
func NormalizeRows(n Normalizer, rows []map[string]string) []Row {
	out := make([]Row, 0, len(rows))
	seen := make(map[string]int)
	for i, raw := range rows {
		canonical, ok := n.Normalize(raw)
		if !ok {
			continue
		}
		row := Row{Source: i, Raw: raw, Canonical: canonical, DuplicateOf: -1}
		if key := n.DedupKey(canonical); key != "" {
			if first, dup := seen[key]; dup {
				row.DuplicateOf = first
			} else {
				seen[key] = i
			}
		}
		out = append(out, row)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
