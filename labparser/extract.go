package labparser

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Tail patterns run against a span that was already cut at the next sentence.
// regexp2 indexes are rune offsets, and \s and \d are Unicode-aware.
var (
	sentenceStart = regexp2.MustCompile(`\s+[А-ЯЁ][а-яё]`, regexp2.None)

	presenceTail = regexp2.MustCompile(
		`(не\s+обнаружен[оа]?|обнаружен[оа]?|отрицательн(?:ый|ая|ое|о)|положительн(?:ый|ая|ое|о)|отриц\.|полож\.)\s*$`,
		regexp2.IgnoreCase)

	decimalTail = regexp2.MustCompile(`(\d+[.,]\d{1,3})\s*$`, regexp2.None)
	integerTail = regexp2.MustCompile(`(\d+)\s*$`, regexp2.None)
	dashTail    = regexp2.MustCompile(`-\s+([^\s-][^-]+?)\s*$`, regexp2.None)
)

// cutAtSentenceStart trims span and drops everything from the first
// "whitespace + capital Cyrillic letter + lowercase Cyrillic letter", which
// usually starts an unrelated sentence the capture ran into.
func cutAtSentenceStart(span string) string {
	span = strings.TrimSpace(span)
	if span == "" {
		return ""
	}
	m, err := sentenceStart.FindStringMatch(span)
	if err != nil || m == nil {
		return span
	}
	return strings.TrimSpace(string([]rune(span)[:m.Index]))
}

// firstGroup returns capture group 1 of the first match of re in s.
func firstGroup(re *regexp2.Regexp, s string) (string, bool) {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return "", false
	}
	g := m.GroupByNumber(1)
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return g.String(), true
}

func extractPresence(span string) (string, bool) {
	return firstGroup(presenceTail, span)
}

func extractNumeric(span string) (string, bool) {
	if v, ok := firstGroup(decimalTail, span); ok {
		return v, true
	}
	return firstGroup(integerTail, span)
}

func extractFreeText(span string) (string, bool) {
	if v, ok := firstGroup(dashTail, span); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	words := strings.Fields(span)
	if len(words) == 0 {
		return "", false
	}
	return words[len(words)-1], true
}

// normalizePresence folds the verdict keyword into "-" or "+". Negations are
// checked first because "не обнаружено" also contains "обнаружен".
func normalizePresence(value string) string {
	v := strings.Join(strings.Fields(strings.ToLower(value)), " ")
	switch {
	case strings.Contains(v, "не обнаружен"), strings.Contains(v, "отриц"):
		return "-"
	case strings.Contains(v, "обнаружен"), strings.Contains(v, "полож"):
		return "+"
	default:
		return value
	}
}
