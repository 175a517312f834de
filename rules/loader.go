package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/labparser/labparser"
)

// RuleFile is the YAML form of a rule collection:
//
//	definitions:
//	  - id: 1
//	    full_example_text: "IgM SARS-CoV-2: отриц."
//	    short_description: IgM-CoV2
//	    indicators:
//	      - indicator_pattern: "IgM SARS-CoV-2: отриц."
//	        variable_part: "отриц."
//	        value_type: 1
//	        is_key_indicator: true
//	legacy_rules:
//	  - id: 100
//	    test_pattern: "HBsAg: отриц."
//	    variable_part: "отриц."
//	    value_type: 1
//	    short_name: HBsAg
type RuleFile struct {
	Definitions []*TestDefinition
	Legacy      []labparser.LegacyRule
}

type rawRuleFile struct {
	Definitions []rawDefinition        `yaml:"definitions"`
	LegacyRules []labparser.LegacyRule `yaml:"legacy_rules"`
}

type rawDefinition struct {
	ID               int64          `yaml:"id"`
	FullExampleText  string         `yaml:"full_example_text"`
	ShortDescription string         `yaml:"short_description"`
	Indicators       []rawIndicator `yaml:"indicators"`
}

// rawIndicator leaves the flags optional so that missing keys get the same
// defaults as the HTTP API: not key, required, positional display order.
type rawIndicator struct {
	ID             int64  `yaml:"id"`
	Pattern        string `yaml:"indicator_pattern"`
	VariablePart   string `yaml:"variable_part"`
	ValueType      int    `yaml:"value_type"`
	IsKeyIndicator *bool  `yaml:"is_key_indicator"`
	IsRequired     *bool  `yaml:"is_required"`
	DisplayOrder   *int   `yaml:"display_order"`
}

func isYAML(p string) bool {
	l := strings.ToLower(p)
	return strings.HasSuffix(l, ".yml") || strings.HasSuffix(l, ".yaml")
}

// LoadRuleYAML parses and validates one rule document.
func LoadRuleYAML(b []byte) (*RuleFile, error) {
	var raw rawRuleFile
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	rf := &RuleFile{Legacy: raw.LegacyRules}
	for i, rd := range raw.Definitions {
		def := &TestDefinition{
			ID:               rd.ID,
			FullExampleText:  rd.FullExampleText,
			ShortDescription: rd.ShortDescription,
		}
		for j, ri := range rd.Indicators {
			def.Indicators = append(def.Indicators, Indicator{
				ID:             ri.ID,
				DefinitionID:   rd.ID,
				Pattern:        ri.Pattern,
				VariablePart:   ri.VariablePart,
				ValueType:      labparser.ValueKind(ri.ValueType),
				IsKeyIndicator: boolOr(ri.IsKeyIndicator, false),
				IsRequired:     boolOr(ri.IsRequired, true),
				DisplayOrder:   intOr(ri.DisplayOrder, j),
			})
		}
		if err := ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("definition %d (%q): %w", i+1, rd.ShortDescription, err)
		}
		rf.Definitions = append(rf.Definitions, def)
	}
	for i, lr := range raw.LegacyRules {
		if lr.ID == 0 {
			return nil, fmt.Errorf("legacy rule %d: id is required", i+1)
		}
	}
	return rf, nil
}

// LoadFile reads one YAML rule file.
func LoadFile(path string) (*RuleFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rf, err := LoadRuleYAML(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf, nil
}

// LoadPath loads a single file, or every .yml/.yaml file under a directory.
func LoadPath(root string) (*RuleFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return LoadFile(root)
	}

	out := &RuleFile{}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		rf, err := LoadFile(p)
		if err != nil {
			return err
		}
		out.Definitions = append(out.Definitions, rf.Definitions...)
		out.Legacy = append(out.Legacy, rf.Legacy...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LegacyDefinition converts a legacy rule into a one-indicator definition
// that keeps the rule's id for both the definition and the indicator.
func LegacyDefinition(r labparser.LegacyRule) *TestDefinition {
	ind := r.Indicator()
	return &TestDefinition{
		ID:               r.ID,
		FullExampleText:  r.Pattern,
		ShortDescription: r.ShortName,
		Indicators: []Indicator{{
			ID:             ind.ID,
			DefinitionID:   ind.DefinitionID,
			Pattern:        ind.Pattern,
			VariablePart:   ind.VariablePart,
			ValueType:      ind.Kind,
			IsKeyIndicator: ind.IsKey,
			IsRequired:     ind.IsRequired,
		}},
	}
}

// All returns the definitions followed by the converted legacy rules.
// Explicit definition ids and legacy ids share one id space.
func (rf *RuleFile) All() ([]*TestDefinition, error) {
	seen := make(map[int64]bool)
	out := make([]*TestDefinition, 0, len(rf.Definitions)+len(rf.Legacy))

	add := func(def *TestDefinition) error {
		if def.ID != 0 {
			if seen[def.ID] {
				return fmt.Errorf("%w: id %d", ErrAlreadyExists, def.ID)
			}
			seen[def.ID] = true
		}
		out = append(out, def)
		return nil
	}

	for _, d := range rf.Definitions {
		if err := add(d.Clone()); err != nil {
			return nil, err
		}
	}
	for _, r := range rf.Legacy {
		if err := add(LegacyDefinition(r)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Seed adds every definition of the file to store.
func (rf *RuleFile) Seed(store DefinitionStore) error {
	defs, err := rf.All()
	if err != nil {
		return err
	}
	for _, d := range defs {
		if err := store.Add(d); err != nil {
			return fmt.Errorf("failed to add definition %q: %w", d.ShortDescription, err)
		}
	}
	return nil
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
