package rules

import (
	"sort"

	"github.com/liamcoop/labparser/labparser"
)

// TestColumns returns the sorted short descriptions of every definition that
// produced a value in records. Values whose definition is not in defs fall
// back to the value's display name.
func TestColumns(records []*labparser.Record, defs []*TestDefinition) []string {
	names := make(map[int64]string, len(defs))
	for _, d := range defs {
		if d != nil {
			names[d.ID] = d.ShortDescription
		}
	}

	seen := make(map[string]bool)
	columns := []string{}
	for _, rec := range records {
		if rec == nil || rec.Results == nil {
			continue
		}
		for _, t := range rec.Results.Tests {
			name, ok := names[t.DefinitionID]
			if !ok {
				name = t.Name
			}
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	sort.Strings(columns)
	return columns
}
