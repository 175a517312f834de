package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/labparser/filter"
	"github.com/liamcoop/labparser/labparser"
)

type parseOutput struct {
	Records     []*labparser.Record `json:"records"`
	Total       int                 `json:"total"`
	Returned    int                 `json:"returned"`
	TestColumns []string            `json:"test_columns"`
}

func newParseCmd(in io.Reader, out io.Writer) *cobra.Command {
	var (
		input      string
		filterExpr string
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a JSON array of records",
		Long: `Parse reads a JSON array of records ({"id", "raw_text", "fields"}),
fills in their results and writes them back as JSON.

Examples:
  labparse parse --rules rules.yaml --input records.json
  cat records.json | labparse parse --rules rules/ --filter 'quality == "parsed"'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f *filter.Filter
			if strings.TrimSpace(filterExpr) != "" {
				var err error
				if f, err = filter.Compile(filterExpr); err != nil {
					return err
				}
			}

			records, err := readRecords(input, in)
			if err != nil {
				return err
			}

			engine, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			columns, err := engine.ParseAllWithColumns(cmd.Context(), records)
			if err != nil {
				return err
			}
			result := parseOutput{
				Records:     records,
				Total:       len(records),
				TestColumns: columns,
			}
			if f != nil {
				result.Records = f.Apply(records)
			}
			result.Returned = len(result.Records)

			return writeJSON(out, result)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "records file (- for stdin)")
	cmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "CEL expression selecting the records to print")
	return cmd
}

// readRecords decodes a JSON array of records, dropping null entries.
func readRecords(path string, stdin io.Reader) ([]*labparser.Record, error) {
	r := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		r = file
	}

	var raw []*labparser.Record
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	records := make([]*labparser.Record, 0, len(raw))
	for _, rec := range raw {
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

type droppedOutput struct {
	IndicatorID  int64  `json:"indicator_id"`
	DefinitionID int64  `json:"test_definition_id"`
	Pattern      string `json:"indicator_pattern"`
	Error        string `json:"error"`
}

type ruleOutput struct {
	IndicatorID  int64  `json:"indicator_id"`
	DefinitionID int64  `json:"test_definition_id"`
	Name         string `json:"short_name"`
	Expression   string `json:"expression"`
}

type checkOutput struct {
	Definitions int                      `json:"definitions"`
	Rules       int                      `json:"rules"`
	Dropped     []droppedOutput          `json:"dropped"`
	Prefilter   labparser.PrefilterStats `json:"prefilter"`
	Expressions []ruleOutput             `json:"expressions,omitempty"`
}

func newCheckCmd(out io.Writer) *cobra.Command {
	var (
		showExpressions bool
		strict          bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compile the rules and report indicators that were dropped",
		Long: `Check compiles every definition in the rule file and reports the
indicators that could not be compiled along with prefilter statistics.

Examples:
  labparse check --rules rules.yaml
  labparse check --rules rules/ --expressions --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defs, err := engine.Definitions()
			if err != nil {
				return err
			}

			rs := engine.RuleSet()
			report := checkOutput{
				Definitions: len(defs),
				Rules:       rs.Len(),
				Dropped:     []droppedOutput{},
				Prefilter:   rs.PrefilterStats(),
			}
			for _, d := range rs.Dropped() {
				report.Dropped = append(report.Dropped, droppedOutput{
					IndicatorID:  d.Indicator.ID,
					DefinitionID: d.Indicator.DefinitionID,
					Pattern:      d.Indicator.Pattern,
					Error:        d.Err.Error(),
				})
			}
			if showExpressions {
				for _, r := range rs.Rules() {
					report.Expressions = append(report.Expressions, ruleOutput{
						IndicatorID:  r.Indicator.ID,
						DefinitionID: r.DefinitionID(),
						Name:         r.Indicator.ShortName,
						Expression:   r.Expression(),
					})
				}
			}

			if err := writeJSON(out, report); err != nil {
				return err
			}
			if strict && len(report.Dropped) > 0 {
				return fmt.Errorf("%d indicators could not be compiled", len(report.Dropped))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showExpressions, "expressions", false, "include the derived regular expressions")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any indicator was dropped")
	return cmd
}
