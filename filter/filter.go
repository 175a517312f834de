// Package filter selects parsed records with CEL expressions, e.g.
//
//	quality == "parsed" && keys["IgM-CoV2"] == "+"
//
// The variables available to an expression are:
//
//	quality   string               "none", "parsed" or "unparsed"
//	summary   string               "" when the record had no summary
//	raw_text  string               "" when the raw value was not a string
//	values    map(string, string)  display name -> value, every extracted test
//	keys      map(string, string)  same, key indicators only
//	matched   list(int)            ids of the indicators that produced values
//	fields    map(string, dyn)     the record's other columns
//	tests     list(map)            the full extracted tests
package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/labparser/internal/logger"
	"github.com/liamcoop/labparser/labparser"
)

// costLimit bounds the work a single evaluation may do.
const costLimit = 1000000

// Filter is a compiled record filter, safe for concurrent use.
type Filter struct {
	expr string
	prog cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("quality", cel.StringType),
		cel.Variable("summary", cel.StringType),
		cel.Variable("raw_text", cel.StringType),
		cel.Variable("values", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("keys", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("matched", cel.ListType(cel.IntType)),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("tests", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
}

// Compile type-checks expr. It must evaluate to a bool.
func Compile(expr string) (*Filter, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter must be a boolean expression, got %s", t)
	}

	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }

// Match evaluates the filter against one record. Non-boolean results count
// as no match.
func (f *Filter) Match(rec *labparser.Record) (bool, error) {
	out, _, err := f.prog.Eval(Activation(rec))
	if err != nil {
		return false, err
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

// Apply returns the records the filter accepts, in their original order.
// A record whose evaluation fails, typically on a missing map key, is left
// out.
func (f *Filter) Apply(records []*labparser.Record) []*labparser.Record {
	out := make([]*labparser.Record, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		ok, err := f.Match(rec)
		if err != nil {
			logger.Debug("filter evaluation failed", "record_id", rec.ID, "filter", f.expr, "error", err)
			continue
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

// Activation builds the variables an expression sees for rec.
func Activation(rec *labparser.Record) map[string]any {
	res := rec.Results
	if res == nil {
		res = &labparser.ParseResult{Quality: labparser.QualityNone}
	}

	values := make(map[string]string, len(res.Tests))
	keys := make(map[string]string)
	tests := make([]map[string]any, 0, len(res.Tests))
	for _, t := range res.Tests {
		values[t.Name] = t.Value
		if t.IsKey {
			keys[t.Name] = t.Value
		}
		tests = append(tests, map[string]any{
			"name":               t.Name,
			"value":              t.Value,
			"raw_value":          t.RawValue,
			"value_type":         int64(t.Kind),
			"test_definition_id": t.DefinitionID,
			"rule_id":            t.IndicatorID,
			"is_key_indicator":   t.IsKey,
			"is_required":        t.IsRequired,
		})
	}

	matched := make([]int64, len(res.MatchedRules))
	copy(matched, res.MatchedRules)

	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}

	raw, _ := rec.RawText.(string)
	summary := ""
	if res.Summary != nil {
		summary = *res.Summary
	}

	return map[string]any{
		"quality":  string(res.Quality),
		"summary":  summary,
		"raw_text": raw,
		"values":   values,
		"keys":     keys,
		"matched":  matched,
		"fields":   fields,
		"tests":    tests,
	}
}
