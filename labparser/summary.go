package labparser

import "strings"

const (
	summaryLimit = 140
	ellipsis     = "..."
)

// BuildSummary joins the key values as "name: value" pairs separated by
// "; ". Without any tests the raw text itself is the summary. Both forms are
// cut to 140 characters, the last three being an ellipsis.
func BuildSummary(tests []ExtractedValue, raw string) string {
	if len(tests) == 0 {
		return truncate(raw)
	}

	parts := make([]string, 0, len(tests))
	for _, t := range tests {
		if t.IsKey {
			parts = append(parts, t.Name+": "+t.Value)
		}
	}
	return truncate(strings.Join(parts, "; "))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= summaryLimit {
		return s
	}
	return string(r[:summaryLimit-len(ellipsis)]) + ellipsis
}
