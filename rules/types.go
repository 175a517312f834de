package rules

import (
	"sort"
	"time"

	"github.com/liamcoop/labparser/labparser"
)

// TestDefinition is one kind of laboratory test as the user described it: a
// full example of the result text, a short name, and the indicators that
// pull values out of that text.
type TestDefinition struct {
	ID               int64       `json:"id" yaml:"id"`
	FullExampleText  string      `json:"full_example_text" yaml:"full_example_text"`
	ShortDescription string      `json:"short_description" yaml:"short_description"`
	Indicators       []Indicator `json:"indicators" yaml:"indicators"`
	CreatedAt        time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time   `json:"updated_at" yaml:"-"`
}

// Indicator is a stored extraction rule owned by a TestDefinition.
type Indicator struct {
	ID             int64               `json:"id" yaml:"id"`
	DefinitionID   int64               `json:"test_definition_id" yaml:"-"`
	Pattern        string              `json:"indicator_pattern" yaml:"indicator_pattern"`
	VariablePart   string              `json:"variable_part" yaml:"variable_part"`
	ValueType      labparser.ValueKind `json:"value_type" yaml:"value_type"`
	IsKeyIndicator bool                `json:"is_key_indicator" yaml:"is_key_indicator"`
	IsRequired     bool                `json:"is_required" yaml:"is_required"`
	DisplayOrder   int                 `json:"display_order" yaml:"display_order"`
}

// Clone returns a deep copy, so stores never share indicator slices with
// callers.
func (d *TestDefinition) Clone() *TestDefinition {
	if d == nil {
		return nil
	}
	c := *d
	c.Indicators = append([]Indicator(nil), d.Indicators...)
	return &c
}

// sortIndicators orders indicators by display order, then id.
func sortIndicators(inds []Indicator) {
	sort.SliceStable(inds, func(i, j int) bool {
		if inds[i].DisplayOrder != inds[j].DisplayOrder {
			return inds[i].DisplayOrder < inds[j].DisplayOrder
		}
		return inds[i].ID < inds[j].ID
	})
}

// Descriptors flattens definitions into the ordered indicator list the
// compiler expects: by definition id, then display order, then indicator id.
// Every indicator is named after its definition's short description.
func Descriptors(defs []*TestDefinition) []labparser.Indicator {
	sorted := make([]*TestDefinition, 0, len(defs))
	for _, d := range defs {
		if d != nil {
			sorted = append(sorted, d)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []labparser.Indicator
	for _, d := range sorted {
		inds := append([]Indicator(nil), d.Indicators...)
		sortIndicators(inds)
		for _, ind := range inds {
			out = append(out, labparser.Indicator{
				ID:           ind.ID,
				DefinitionID: d.ID,
				Pattern:      ind.Pattern,
				VariablePart: ind.VariablePart,
				Kind:         ind.ValueType,
				ShortName:    d.ShortDescription,
				IsKey:        ind.IsKeyIndicator,
				IsRequired:   ind.IsRequired,
				DisplayOrder: ind.DisplayOrder,
			})
		}
	}
	return out
}
