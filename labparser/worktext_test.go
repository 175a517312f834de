package labparser

import (
	"reflect"
	"testing"
)

// TestWorkingTextConsume verifies removal of first occurrences, including
// removals that straddle text removed earlier.
func TestWorkingTextConsume(t *testing.T) {
	w := newWorkingText("abcdef")

	steps := []struct {
		consume      string
		wantOK       bool
		wantResidual string
		wantConsumed []textRange
	}{
		{consume: "cd", wantOK: true, wantResidual: "abef", wantConsumed: []textRange{{2, 4}}},
		{consume: "be", wantOK: true, wantResidual: "af", wantConsumed: []textRange{{1, 5}}},
		{consume: "zz", wantOK: false, wantResidual: "af", wantConsumed: []textRange{{1, 5}}},
		{consume: "", wantOK: false, wantResidual: "af", wantConsumed: []textRange{{1, 5}}},
		{consume: "f", wantOK: true, wantResidual: "a", wantConsumed: []textRange{{1, 6}}},
	}

	for _, step := range steps {
		if ok := w.consume(step.consume); ok != step.wantOK {
			t.Fatalf("consume(%q) = %v, want %v", step.consume, ok, step.wantOK)
		}
		if w.String() != step.wantResidual {
			t.Errorf("after consume(%q) residual = %q, want %q", step.consume, w.String(), step.wantResidual)
		}
		if !reflect.DeepEqual(w.Consumed(), step.wantConsumed) {
			t.Errorf("after consume(%q) consumed = %v, want %v", step.consume, w.Consumed(), step.wantConsumed)
		}
	}
}

// TestWorkingTextFirstOccurrence verifies the earliest copy is removed.
func TestWorkingTextFirstOccurrence(t *testing.T) {
	w := newWorkingText("x=1; y=2; x=1")
	w.consume("x=1")
	if w.String() != "; y=2; x=1" {
		t.Errorf("residual = %q", w.String())
	}
	w.consume("x=1")
	if w.String() != "; y=2; " {
		t.Errorf("residual = %q", w.String())
	}
	if !reflect.DeepEqual(w.Consumed(), []textRange{{0, 3}, {10, 13}}) {
		t.Errorf("consumed = %v", w.Consumed())
	}
}

// TestWorkingTextMultibyte verifies ranges are byte offsets into the original.
func TestWorkingTextMultibyte(t *testing.T) {
	w := newWorkingText("ИФА: 5; ПЦР: 7")
	w.consume("ИФА: 5")
	if w.String() != "; ПЦР: 7" {
		t.Errorf("residual = %q", w.String())
	}
	if got := w.Consumed(); len(got) != 1 || got[0] != (textRange{0, len("ИФА: 5")}) {
		t.Errorf("consumed = %v", got)
	}
}
