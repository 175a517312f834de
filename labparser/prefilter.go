package labparser

import (
	"strings"

	ac "github.com/petar-dambovaliev/aho-corasick"
)

// A definition group is skipped when none of its rules' literals occurs in
// the record text. Until some rule in a group matches nothing is removed from
// the working text, so a group whose literals are all absent cannot produce
// anything and skipping it changes no result.

// PrefilterConfig controls the literal prefilter.
type PrefilterConfig struct {
	// Enabled turns the prefilter on.
	Enabled bool `json:"enabled"`
	// MinPatternLength is the shortest literal (in bytes, after lowering)
	// worth searching for. A rule without such a literal disables the
	// prefilter for its whole group.
	MinPatternLength int `json:"min_pattern_length"`
}

// DefaultPrefilterConfig enables the prefilter for literals of two bytes or more.
func DefaultPrefilterConfig() PrefilterConfig {
	return PrefilterConfig{
		Enabled:          true,
		MinPatternLength: 2,
	}
}

// DisabledPrefilterConfig runs every rule on every record.
func DisabledPrefilterConfig() PrefilterConfig {
	cfg := DefaultPrefilterConfig()
	cfg.Enabled = false
	return cfg
}

// PrefilterStats describes the prefilters built for a RuleSet.
type PrefilterStats struct {
	Groups         int `json:"groups"`
	FilteredGroups int `json:"filtered_groups"`
	PatternCount   int `json:"pattern_count"`
}

// literalPrefilter answers "may any rule of this group match?".
type literalPrefilter struct {
	automaton ac.AhoCorasick
	patterns  []string
}

// mayMatch reports whether any pattern occurs in lowered. Leftmost-longest
// matching reports at least one match whenever any pattern occurs.
func (p *literalPrefilter) mayMatch(lowered string) bool {
	return len(p.automaton.FindAll(lowered)) > 0
}

// foldCase lowers s rune by rune, the same folding regexp2 applies under
// IgnoreCase.
func foldCase(s string) string {
	return strings.ToLower(s)
}

// groupLiterals picks the longest literal of every rule. ok is false when a
// rule has no usable literal.
func groupLiterals(rules []*CompiledRule, cfg PrefilterConfig) (patterns []string, ok bool) {
	seen := make(map[string]bool)
	for _, r := range rules {
		best := ""
		for _, lit := range r.literals {
			l := foldCase(lit)
			if len(l) > len(best) {
				best = l
			}
		}
		if best == "" || len(best) < cfg.MinPatternLength {
			return nil, false
		}
		if !seen[best] {
			seen[best] = true
			patterns = append(patterns, best)
		}
	}
	return patterns, len(patterns) > 0
}

func buildGroupPrefilters(groups []ruleGroup, cfg PrefilterConfig) PrefilterStats {
	stats := PrefilterStats{Groups: len(groups)}
	if !cfg.Enabled {
		return stats
	}

	for i := range groups {
		patterns, ok := groupLiterals(groups[i].rules, cfg)
		if !ok {
			continue
		}
		builder := ac.NewAhoCorasickBuilder(ac.Opts{
			AsciiCaseInsensitive: false,
			MatchOnlyWholeWords:  false,
			MatchKind:            ac.LeftMostLongestMatch,
		})
		groups[i].filter = &literalPrefilter{
			automaton: builder.Build(patterns),
			patterns:  patterns,
		}
		stats.FilteredGroups++
		stats.PatternCount += len(patterns)
	}
	return stats
}
