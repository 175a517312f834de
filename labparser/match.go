package labparser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// ruleGroup holds the compiled rules of one definition in matching order.
type ruleGroup struct {
	definitionID int64
	rules        []*CompiledRule
	filter       *literalPrefilter
}

// displayName is the indicator's short name, numbered when the group has
// more than one rule.
func (g *ruleGroup) displayName(pos int) string {
	name := g.rules[pos].Indicator.ShortName
	if len(g.rules) > 1 {
		return fmt.Sprintf("%s-%d", name, pos+1)
	}
	return name
}

// RuleSet is an immutable compiled rule set.
type RuleSet struct {
	groups  []ruleGroup
	dropped []DroppedIndicator
	size    int
	stats   PrefilterStats

	// limited holds copies whose searches give up after a record budget,
	// built on first use by ParseAll.
	limitedMu sync.Mutex
	limited   map[time.Duration]*RuleSet
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return rs.size
}

// Rules returns the compiled rules in matching order.
func (rs *RuleSet) Rules() []*CompiledRule {
	if rs == nil {
		return nil
	}
	out := make([]*CompiledRule, 0, rs.size)
	for _, g := range rs.groups {
		out = append(out, g.rules...)
	}
	return out
}

// Dropped returns the indicators that could not be compiled.
func (rs *RuleSet) Dropped() []DroppedIndicator {
	if rs == nil {
		return nil
	}
	return append([]DroppedIndicator(nil), rs.dropped...)
}

// PrefilterStats describes the literal prefilters of the set.
func (rs *RuleSet) PrefilterStats() PrefilterStats {
	if rs == nil {
		return PrefilterStats{}
	}
	return rs.stats
}

// Parse applies the rule set to one record's text. A nil or empty text gives
// a result of quality none. Parse never fails; a regular-expression timeout
// turns the record into an unparsed result with Error set.
func (rs *RuleSet) Parse(raw *string) ParseResult {
	res, err := rs.ParseContext(context.Background(), raw)
	if err != nil {
		return failedResult(strings.TrimSpace(*raw), err)
	}
	return res
}

// ParseValue parses v when it is a string (or *string) and returns a result of
// quality none for anything else.
func (rs *RuleSet) ParseValue(v any) ParseResult {
	switch t := v.(type) {
	case string:
		return rs.Parse(&t)
	case *string:
		return rs.Parse(t)
	default:
		return noneResult(nil)
	}
}

// ParseContext is Parse with cancellation. The context is checked before
// every rule; an error is returned when it is done or when a search exceeds
// the compiled match timeout.
func (rs *RuleSet) ParseContext(ctx context.Context, raw *string) (ParseResult, error) {
	if raw == nil || *raw == "" {
		return noneResult(raw), nil
	}
	text := strings.TrimSpace(*raw)

	res := ParseResult{
		Tests:        []ExtractedValue{},
		RawText:      &text,
		MatchedRules: []int64{},
	}

	var groups []ruleGroup
	if rs != nil {
		groups = rs.groups
	}

	lowered := ""
	for gi := range groups {
		g := &groups[gi]
		if g.filter != nil {
			if lowered == "" {
				lowered = foldCase(text)
			}
			if !g.filter.mayMatch(lowered) {
				continue
			}
		}

		work := newWorkingText(text)
		for pos, rule := range g.rules {
			if err := ctx.Err(); err != nil {
				return ParseResult{}, err
			}

			m, err := rule.re.FindStringMatch(work.String())
			if err != nil {
				return ParseResult{}, fmt.Errorf("indicator %d: %w", rule.Indicator.ID, err)
			}
			if m == nil {
				continue
			}

			if raw, value, ok := extractMatch(rule, m); ok {
				res.Tests = append(res.Tests, ExtractedValue{
					Name:         g.displayName(pos),
					Value:        value,
					RawValue:     raw,
					Kind:         rule.Indicator.Kind,
					DefinitionID: g.definitionID,
					IndicatorID:  rule.Indicator.ID,
					IsKey:        rule.Indicator.IsKey,
					IsRequired:   rule.Indicator.IsRequired,
				})
				res.MatchedRules = append(res.MatchedRules, rule.Indicator.ID)
			}

			work.consume(m.String())
		}
	}

	if len(res.Tests) > 0 {
		res.Quality = QualityParsed
	} else {
		res.Quality = QualityUnparsed
	}
	summary := BuildSummary(res.Tests, text)
	res.Summary = &summary
	return res, nil
}

// extractMatch reads the value out of capture group 1. Rules whose variable
// part was not found in their pattern have no group and yield nothing.
func extractMatch(rule *CompiledRule, m *regexp2.Match) (raw, value string, ok bool) {
	g := m.GroupByNumber(1)
	if g == nil || len(g.Captures) == 0 {
		return "", "", false
	}
	raw, ok = rule.Indicator.Kind.Extract(g.String())
	if !ok || raw == "" {
		return "", "", false
	}
	return raw, rule.Indicator.Kind.Normalize(raw), true
}

func noneResult(raw *string) ParseResult {
	return ParseResult{
		Tests:        []ExtractedValue{},
		RawText:      raw,
		Quality:      QualityNone,
		MatchedRules: []int64{},
	}
}

func failedResult(text string, err error) ParseResult {
	summary := BuildSummary(nil, text)
	return ParseResult{
		Tests:        []ExtractedValue{},
		Summary:      &summary,
		RawText:      &text,
		Quality:      QualityUnparsed,
		MatchedRules: []int64{},
		Error:        err.Error(),
	}
}
