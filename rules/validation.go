package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition wraps every validation failure.
var ErrInvalidDefinition = errors.New("invalid test definition")

const (
	maxIndicators    = 200
	maxPatternLength = 4000
)

// ValidateDefinition checks a definition before it is stored. The example
// text and short description are trimmed in place; indicator patterns are
// kept as written.
func ValidateDefinition(def *TestDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is required", ErrInvalidDefinition)
	}

	def.FullExampleText = strings.TrimSpace(def.FullExampleText)
	def.ShortDescription = strings.TrimSpace(def.ShortDescription)

	if def.FullExampleText == "" {
		return fmt.Errorf("%w: full_example_text is required", ErrInvalidDefinition)
	}
	if def.ShortDescription == "" {
		return fmt.Errorf("%w: short_description is required", ErrInvalidDefinition)
	}
	if len(def.Indicators) == 0 {
		return fmt.Errorf("%w: at least one indicator is required", ErrInvalidDefinition)
	}
	if len(def.Indicators) > maxIndicators {
		return fmt.Errorf("%w: definition has %d indicators, maximum allowed is %d",
			ErrInvalidDefinition, len(def.Indicators), maxIndicators)
	}

	for i := range def.Indicators {
		if err := validateIndicator(&def.Indicators[i]); err != nil {
			return fmt.Errorf("%w: indicator %d: %v", ErrInvalidDefinition, i+1, err)
		}
	}
	return nil
}

func validateIndicator(ind *Indicator) error {
	if strings.TrimSpace(ind.Pattern) == "" {
		return errors.New("indicator_pattern is required")
	}
	if len(ind.Pattern) > maxPatternLength {
		return fmt.Errorf("indicator_pattern length %d exceeds maximum of %d", len(ind.Pattern), maxPatternLength)
	}
	if strings.TrimSpace(ind.VariablePart) == "" {
		return errors.New("variable_part is required")
	}
	if !ind.ValueType.Valid() {
		return errors.New("value_type must be 1, 2, or 3")
	}
	if !strings.Contains(ind.Pattern, ind.VariablePart) {
		return errors.New("variable_part must be part of indicator_pattern")
	}
	return nil
}
