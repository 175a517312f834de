package rules

import (
	"reflect"
	"testing"

	"github.com/liamcoop/labparser/labparser"
)

// TestTestColumns verifies columns are named after definitions, deduplicated
// and sorted.
func TestTestColumns(t *testing.T) {
	defs := []*TestDefinition{
		{ID: 1, ShortDescription: "SARS-CoV-2"},
		{ID: 2, ShortDescription: "Глюкоза"},
	}
	result := func(tests ...labparser.ExtractedValue) *labparser.ParseResult {
		return &labparser.ParseResult{Tests: tests}
	}

	testCases := []struct {
		name    string
		records []*labparser.Record
		want    []string
	}{
		{
			name:    "no records",
			records: nil,
			want:    []string{},
		},
		{
			name: "numbered names collapse to the definition",
			records: []*labparser.Record{
				{ID: "1", Results: result(
					labparser.ExtractedValue{Name: "SARS-CoV-2-1", DefinitionID: 1},
					labparser.ExtractedValue{Name: "SARS-CoV-2-2", DefinitionID: 1},
				)},
				{ID: "2", Results: result(labparser.ExtractedValue{Name: "Глюкоза", DefinitionID: 2})},
				{ID: "3"},
				nil,
			},
			want: []string{"SARS-CoV-2", "Глюкоза"},
		},
		{
			name: "unknown definition keeps the value name",
			records: []*labparser.Record{
				{ID: "1", Results: result(labparser.ExtractedValue{Name: "HBsAg", DefinitionID: 99})},
			},
			want: []string{"HBsAg"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := TestColumns(tc.records, defs)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("TestColumns() = %v, want %v", got, tc.want)
			}
		})
	}
}
