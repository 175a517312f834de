package labparser

import "testing"

// TestKindExtract verifies the tail heuristics of every value kind.
func TestKindExtract(t *testing.T) {
	testCases := []struct {
		name      string
		kind      ValueKind
		span      string
		wantRaw   string
		wantValue string
		wantOK    bool
	}{
		{name: "presence abbreviated negative", kind: Presence, span: "отриц.", wantRaw: "отриц.", wantValue: "-", wantOK: true},
		{name: "presence not detected", kind: Presence, span: "РНК не обнаружено", wantRaw: "не обнаружено", wantValue: "-", wantOK: true},
		{name: "presence not detected feminine", kind: Presence, span: "не обнаружена ", wantRaw: "не обнаружена", wantValue: "-", wantOK: true},
		{name: "presence detected", kind: Presence, span: "обнаружено", wantRaw: "обнаружено", wantValue: "+", wantOK: true},
		{name: "presence positive adverb", kind: Presence, span: "положительно", wantRaw: "положительно", wantValue: "+", wantOK: true},
		{name: "presence negative adverb", kind: Presence, span: "отрицательно", wantRaw: "отрицательно", wantValue: "-", wantOK: true},
		{name: "presence abbreviated positive", kind: Presence, span: "ПОЛОЖ.", wantRaw: "ПОЛОЖ.", wantValue: "+", wantOK: true},
		{name: "presence cut at next sentence", kind: Presence, span: "обнаружено Повторить анализ", wantRaw: "обнаружено", wantValue: "+", wantOK: true},
		{name: "presence without keyword", kind: Presence, span: "12.5", wantOK: false},
		{name: "numeric decimal", kind: Numeric, span: "уровень 12.5", wantRaw: "12.5", wantValue: "12.5", wantOK: true},
		{name: "numeric comma kept", kind: Numeric, span: "5,25", wantRaw: "5,25", wantValue: "5,25", wantOK: true},
		{name: "numeric integer fallback", kind: Numeric, span: "гемоглобин 130", wantRaw: "130", wantValue: "130", wantOK: true},
		{name: "numeric nothing", kind: Numeric, span: "нет данных", wantOK: false},
		{name: "free text after dash", kind: FreeText, span: "группа - A(II)", wantRaw: "A(II)", wantValue: "A(II)", wantOK: true},
		{name: "free text last word", kind: FreeText, span: "результат норма", wantRaw: "норма", wantValue: "норма", wantOK: true},
		{name: "empty span", kind: FreeText, span: "   ", wantOK: false},
		{name: "unknown kind", kind: ValueKind(9), span: "5", wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, ok := tc.kind.Extract(tc.span)
			if ok != tc.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v (raw %q)", tc.span, ok, tc.wantOK, raw)
			}
			if !ok {
				return
			}
			if raw != tc.wantRaw {
				t.Errorf("Extract(%q) = %q, want %q", tc.span, raw, tc.wantRaw)
			}
			if got := tc.kind.Normalize(raw); got != tc.wantValue {
				t.Errorf("Normalize(%q) = %q, want %q", raw, got, tc.wantValue)
			}
		})
	}
}

// TestNormalizePresence verifies negations win over the bare keyword.
func TestNormalizePresence(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{input: "не обнаружено", want: "-"},
		{input: "Не  Обнаружено", want: "-"},
		{input: "отрицательно", want: "-"},
		{input: "обнаружено", want: "+"},
		{input: "положительно", want: "+"},
		{input: "сомнительно", want: "сомнительно"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := normalizePresence(tc.input); got != tc.want {
				t.Errorf("normalizePresence(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

// TestParseValueKind verifies stored codes outside 1..3 are rejected.
func TestParseValueKind(t *testing.T) {
	for code := 1; code <= 3; code++ {
		k, err := ParseValueKind(code)
		if err != nil {
			t.Errorf("ParseValueKind(%d) error: %v", code, err)
		}
		if int(k) != code {
			t.Errorf("ParseValueKind(%d) = %d", code, k)
		}
	}
	for _, code := range []int{0, 4, -1} {
		if _, err := ParseValueKind(code); err == nil {
			t.Errorf("ParseValueKind(%d) should fail", code)
		}
	}
	if Numeric.String() != "numeric" {
		t.Errorf("Numeric.String() = %q", Numeric.String())
	}
}

// TestCutAtSentenceStart verifies the span is cut before a capitalised word.
func TestCutAtSentenceStart(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{input: "  5.2  ", want: "5.2"},
		{input: "5.2 Исследование выполнено", want: "5.2"},
		{input: "5.2 ИФА", want: "5.2 ИФА"},
		{input: "Обнаружено", want: "Обнаружено"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := cutAtSentenceStart(tc.input); got != tc.want {
				t.Errorf("cutAtSentenceStart(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
