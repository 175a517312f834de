package main

import (
	"time"

	"github.com/liamcoop/labparser/labparser"
	"github.com/liamcoop/labparser/multilab"
	"github.com/liamcoop/labparser/rules"
)

// CreateLabRequest represents the request body for creating a lab
type CreateLabRequest struct {
	Name string `json:"name" example:"Central Lab"`
}

// LabsListResponse represents the response for listing labs
type LabsListResponse struct {
	Labs []multilab.Lab `json:"labs"`
}

// IndicatorRequest is one indicator of a definition request. Missing flags
// default to not key, required, and the indicator's position.
type IndicatorRequest struct {
	IndicatorPattern string `json:"indicator_pattern" example:"IgM SARS-CoV-2: отриц."`
	VariablePart     string `json:"variable_part" example:"отриц."`
	ValueType        int    `json:"value_type" example:"1"`
	IsKeyIndicator   *bool  `json:"is_key_indicator,omitempty"`
	IsRequired       *bool  `json:"is_required,omitempty"`
	DisplayOrder     *int   `json:"display_order,omitempty"`
}

// DefinitionRequest represents the body for creating or replacing a test
// definition
type DefinitionRequest struct {
	FullExampleText  string             `json:"full_example_text"`
	ShortDescription string             `json:"short_description"`
	Indicators       []IndicatorRequest `json:"indicators"`
}

func (r DefinitionRequest) toDefinition(id int64) *rules.TestDefinition {
	def := &rules.TestDefinition{
		ID:               id,
		FullExampleText:  r.FullExampleText,
		ShortDescription: r.ShortDescription,
		Indicators:       make([]rules.Indicator, 0, len(r.Indicators)),
	}
	for i, ind := range r.Indicators {
		def.Indicators = append(def.Indicators, rules.Indicator{
			DefinitionID:   id,
			Pattern:        ind.IndicatorPattern,
			VariablePart:   ind.VariablePart,
			ValueType:      labparser.ValueKind(ind.ValueType),
			IsKeyIndicator: boolOr(ind.IsKeyIndicator, false),
			IsRequired:     boolOr(ind.IsRequired, true),
			DisplayOrder:   intOr(ind.DisplayOrder, i),
		})
	}
	return def
}

// DefinitionsListResponse represents the response for listing definitions
type DefinitionsListResponse struct {
	Definitions []*rules.TestDefinition `json:"definitions"`
	Count       int                     `json:"count"`
}

// ParseRequest carries the records to parse and an optional CEL filter
type ParseRequest struct {
	Records []*labparser.Record `json:"records"`
	Filter  string              `json:"filter,omitempty" example:"quality == \"parsed\""`
}

// ParseResponse returns the parsed (and filtered) records
type ParseResponse struct {
	Records     []*labparser.Record `json:"records"`
	Total       int                 `json:"total"`
	Returned    int                 `json:"returned"`
	TestColumns []string            `json:"test_columns"`
	ParseTime   string              `json:"parseTime" example:"2.3ms"`
}

// DroppedIndicatorResponse names an indicator the compiler left out
type DroppedIndicatorResponse struct {
	IndicatorID  int64  `json:"indicator_id"`
	DefinitionID int64  `json:"test_definition_id"`
	Error        string `json:"error"`
}

// ReloadResponse reports the rule set after a reload
type ReloadResponse struct {
	Rules   int                        `json:"rules"`
	Dropped []DroppedIndicatorResponse `json:"dropped"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation failed"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string    `json:"status" example:"healthy"`
	Storage    string    `json:"storage" example:"postgres"`
	LabsLoaded int       `json:"labsLoaded"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
