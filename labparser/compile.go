package labparser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/liamcoop/labparser/internal/logger"
)

// DefaultBoundaryKeywords start the next clinical statement in a report line.
// A capture stops in front of " <keyword>".
var DefaultBoundaryKeywords = []string{
	"Определение",
	"Исследование",
	"Антитела",
	"Выявление",
	"Анализ",
}

const ruleOptions = regexp2.IgnoreCase | regexp2.Singleline

var errEmptyPattern = errors.New("indicator pattern and variable part must not be empty")

// CompiledRule is an indicator together with its matcher.
type CompiledRule struct {
	Indicator Indicator
	re        *regexp2.Regexp
	// literals are the pattern pieces around the variable part, all of which
	// must occur in any text the matcher matches. nil when that cannot be
	// guaranteed.
	literals []string
}

// DefinitionID returns the id of the definition that owns the rule.
func (r *CompiledRule) DefinitionID() int64 { return r.Indicator.DefinitionID }

// Expression returns the derived regular expression.
func (r *CompiledRule) Expression() string { return r.re.String() }

// withMatchTimeout returns the rule with every search limited to d. A rule
// that already gives up within d is returned as is.
func (r *CompiledRule) withMatchTimeout(d time.Duration) *CompiledRule {
	if r.re.MatchTimeout <= d {
		return r
	}
	re, err := regexp2.Compile(r.re.String(), ruleOptions)
	if err != nil {
		return r
	}
	re.MatchTimeout = d

	c := *r
	c.re = re
	return &c
}

// DroppedIndicator records an indicator left out of a RuleSet.
type DroppedIndicator struct {
	Indicator Indicator
	Err       error
}

// Compiler builds RuleSets. The zero value is not usable; use NewCompiler.
type Compiler struct {
	keywords     []string
	matchTimeout time.Duration
	prefilter    PrefilterConfig
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithBoundaryKeywords replaces the sentence-start keywords. Each keyword is
// used as a regular-expression alternative, so it may itself be a fragment
// such as `Антител[аы]`.
func WithBoundaryKeywords(keywords ...string) CompilerOption {
	return func(c *Compiler) {
		c.keywords = append([]string(nil), keywords...)
	}
}

// WithMatchTimeout bounds a single regular-expression search. Zero keeps the
// regexp2 default (no limit).
func WithMatchTimeout(d time.Duration) CompilerOption {
	return func(c *Compiler) {
		c.matchTimeout = d
	}
}

// WithPrefilter sets the literal prefilter configuration.
func WithPrefilter(cfg PrefilterConfig) CompilerOption {
	return func(c *Compiler) {
		c.prefilter = cfg
	}
}

// NewCompiler creates a compiler with the default keywords and prefilter.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		keywords:  append([]string(nil), DefaultBoundaryKeywords...),
		prefilter: DefaultPrefilterConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile builds a RuleSet with the default compiler.
func Compile(indicators []Indicator) *RuleSet {
	return NewCompiler().Compile(indicators)
}

// CompileLegacy normalizes legacy rules and compiles them.
func (c *Compiler) CompileLegacy(rules []LegacyRule) *RuleSet {
	indicators := make([]Indicator, 0, len(rules))
	for _, r := range rules {
		indicators = append(indicators, r.Indicator())
	}
	return c.Compile(indicators)
}

// captureExpr is the group that replaces the variable part: the shortest run
// of anything up to ";", a boundary keyword, or the end of the text.
func (c *Compiler) captureExpr() string {
	stop := []string{";"}
	if len(c.keywords) > 0 {
		stop = append(stop, `\s+(?:`+strings.Join(c.keywords, "|")+`)`)
	}
	stop = append(stop, "$")
	return `(.+?)(?=` + strings.Join(stop, "|") + `)`
}

// Compile turns indicators into a RuleSet. The input order is kept; callers
// pass indicators sorted by definition, display order and id. Indicators whose
// derived expression does not compile are dropped and logged.
func (c *Compiler) Compile(indicators []Indicator) *RuleSet {
	capture := c.captureExpr()
	rs := &RuleSet{}
	groupIndex := make(map[int64]int)

	for _, ind := range indicators {
		rule, err := c.compileOne(ind, capture)
		if err != nil {
			rs.dropped = append(rs.dropped, DroppedIndicator{Indicator: ind, Err: err})
			logger.DroppedIndicators.Add(1)
			logger.Warn("dropping indicator",
				"indicator_id", ind.ID,
				"definition_id", ind.DefinitionID,
				"error", err)
			continue
		}

		idx, ok := groupIndex[ind.DefinitionID]
		if !ok {
			idx = len(rs.groups)
			groupIndex[ind.DefinitionID] = idx
			rs.groups = append(rs.groups, ruleGroup{definitionID: ind.DefinitionID})
		}
		rs.groups[idx].rules = append(rs.groups[idx].rules, rule)
		rs.size++
	}

	rs.stats = buildGroupPrefilters(rs.groups, c.prefilter)
	return rs
}

func (c *Compiler) compileOne(ind Indicator, capture string) (*CompiledRule, error) {
	if ind.Pattern == "" || ind.VariablePart == "" {
		return nil, errEmptyPattern
	}
	if !ind.Kind.Valid() {
		return nil, fmt.Errorf("unknown value type %d", int(ind.Kind))
	}

	escapedPattern := regexp2.Escape(ind.Pattern)
	escapedVariable := regexp2.Escape(ind.VariablePart)
	expr := strings.ReplaceAll(escapedPattern, escapedVariable, capture)

	re, err := regexp2.Compile(expr, ruleOptions)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	if c.matchTimeout > 0 {
		re.MatchTimeout = c.matchTimeout
	}

	return &CompiledRule{
		Indicator: ind,
		re:        re,
		literals:  requiredLiterals(ind, escapedPattern, escapedVariable),
	}, nil
}

// requiredLiterals splits the pattern around the variable part. The split is
// only trusted when escaping did not create or hide occurrences of the
// variable part, i.e. when re-joining the escaped pieces gives back exactly
// what was compiled.
func requiredLiterals(ind Indicator, escapedPattern, escapedVariable string) []string {
	parts := strings.Split(ind.Pattern, ind.VariablePart)
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = regexp2.Escape(p)
	}
	if strings.Join(escaped, escapedVariable) != escapedPattern ||
		strings.Count(escapedPattern, escapedVariable) != len(parts)-1 {
		return nil
	}

	literals := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			literals = append(literals, p)
		}
	}
	return literals
}
