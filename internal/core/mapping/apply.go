package mapping

import "sort"

// ApplyMapping renames the keys of every row to their mapped targets and
// returns new rows. Unmapped and ignored keys are kept as they are. When a
// target already exists as a key of the row, the source key is left in place
// so no value is lost. Applying a mapping to rows it already renamed changes
// nothing.
func ApplyMapping(rows []map[string]string, m Mapping) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		renamed := make(map[string]string, len(row))
		for key, value := range row {
			if target, ok := m[key]; !ok || target == Ignore || target == key {
				renamed[key] = value
			}
		}
		for _, key := range sortedKeys(row) {
			value := row[key]
			target, ok := m[key]
			if !ok || target == Ignore || target == key {
				continue
			}
			if _, taken := renamed[target]; taken {
				renamed[key] = value
				continue
			}
			renamed[target] = value
		}
		out = append(out, renamed)
	}
	return out
}

// DropIgnored returns copies of rows without the headers explicitly mapped to
// Ignore, so they cannot reach the normalizer through alias resolution.
func DropIgnored(rows []map[string]string, m Mapping) []map[string]string {
	var ignored []string
	for header, target := range m {
		if target == Ignore {
			ignored = append(ignored, header)
		}
	}
	if len(ignored) == 0 {
		return rows
	}
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		kept := make(map[string]string, len(row))
		for k, v := range row {
			kept[k] = v
		}
		for _, h := range ignored {
			delete(kept, h)
		}
		out = append(out, kept)
	}
	return out
}

func sortedKeys(row map[string]string) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
