// Package labparser turns user-authored extraction rules into compiled
// matchers and applies them to free-text laboratory results.
//
// The package performs no I/O. A RuleSet is built once per set of rules and
// is safe to share between goroutines; every Parse call works on its own
// buffers.
package labparser

// Indicator is one extraction rule: an example pattern, the variable part
// inside it that holds the value, and how the value should be read.
type Indicator struct {
	ID           int64     `json:"id" yaml:"id"`
	DefinitionID int64     `json:"test_definition_id" yaml:"test_definition_id"`
	Pattern      string    `json:"indicator_pattern" yaml:"indicator_pattern"`
	VariablePart string    `json:"variable_part" yaml:"variable_part"`
	Kind         ValueKind `json:"value_type" yaml:"value_type"`
	ShortName    string    `json:"short_name" yaml:"short_name"`
	IsKey        bool      `json:"is_key_indicator" yaml:"is_key_indicator"`
	IsRequired   bool      `json:"is_required" yaml:"is_required"`
	DisplayOrder int       `json:"display_order" yaml:"display_order"`
}

// LegacyRule is the single-indicator rule shape that predates test
// definitions. It has no owning definition.
type LegacyRule struct {
	ID           int64     `json:"id" yaml:"id"`
	Pattern      string    `json:"test_pattern" yaml:"test_pattern"`
	VariablePart string    `json:"variable_part" yaml:"variable_part"`
	Kind         ValueKind `json:"value_type" yaml:"value_type"`
	ShortName    string    `json:"short_name" yaml:"short_name"`
}

// Indicator converts the legacy rule into a one-indicator definition whose
// id is the rule's own id. Legacy rules are always key and required.
func (r LegacyRule) Indicator() Indicator {
	return Indicator{
		ID:           r.ID,
		DefinitionID: r.ID,
		Pattern:      r.Pattern,
		VariablePart: r.VariablePart,
		Kind:         r.Kind,
		ShortName:    r.ShortName,
		IsKey:        true,
		IsRequired:   true,
	}
}

// ExtractedValue is one value produced by an indicator.
type ExtractedValue struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	RawValue     string    `json:"raw_value"`
	Kind         ValueKind `json:"value_type"`
	DefinitionID int64     `json:"test_definition_id"`
	IndicatorID  int64     `json:"rule_id"`
	IsKey        bool      `json:"is_key_indicator"`
	IsRequired   bool      `json:"is_required"`
}

// Quality tells whether a record had text and whether anything matched.
type Quality string

const (
	QualityNone     Quality = "none"
	QualityParsed   Quality = "parsed"
	QualityUnparsed Quality = "unparsed"
)

// ParseResult is the outcome of parsing one record's text.
type ParseResult struct {
	Tests        []ExtractedValue `json:"tests"`
	Summary      *string          `json:"summary"`
	RawText      *string          `json:"raw_text"`
	Quality      Quality          `json:"parse_quality"`
	MatchedRules []int64          `json:"matched_rules"`
	// Error is set when the record was abandoned, e.g. on a time budget.
	Error string `json:"error,omitempty"`
}

// Record is one row of an upstream results table. RawText holds whatever the
// source had in the results column; only strings are parsed.
type Record struct {
	ID      string         `json:"id"`
	Fields  map[string]any `json:"fields,omitempty"`
	RawText any            `json:"raw_text"`
	Results *ParseResult   `json:"results,omitempty"`
}
