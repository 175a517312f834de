package labparser

import "fmt"

// ValueKind selects the extraction and normalization heuristics applied to a
// captured span. The numeric codes are the ones stored with indicators.
type ValueKind int

const (
	// Presence values are detected / not detected (positive / negative) verdicts.
	Presence ValueKind = 1
	// Numeric values are trailing integers or decimals.
	Numeric ValueKind = 2
	// FreeText values are whatever follows the last " - " or the last word.
	FreeText ValueKind = 3
)

// kindFuncs holds the per-kind behavior.
type kindFuncs struct {
	name      string
	extract   func(span string) (string, bool)
	normalize func(value string) string
}

var kinds = map[ValueKind]kindFuncs{
	Presence: {name: "presence", extract: extractPresence, normalize: normalizePresence},
	Numeric:  {name: "numeric", extract: extractNumeric, normalize: keepValue},
	FreeText: {name: "free_text", extract: extractFreeText, normalize: keepValue},
}

// ParseValueKind converts a stored value type code into a ValueKind.
func ParseValueKind(code int) (ValueKind, error) {
	k := ValueKind(code)
	if !k.Valid() {
		return 0, fmt.Errorf("value type must be 1, 2, or 3, got %d", code)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k ValueKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k ValueKind) String() string {
	if f, ok := kinds[k]; ok {
		return f.name
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Extract pulls the value token out of a raw captured span. The span is
// trimmed and cut at the first likely sentence start before the kind-specific
// tail search runs. ok is false when nothing could be extracted.
func (k ValueKind) Extract(span string) (value string, ok bool) {
	f, known := kinds[k]
	if !known {
		return "", false
	}
	span = cutAtSentenceStart(span)
	if span == "" {
		return "", false
	}
	return f.extract(span)
}

// Normalize maps an extracted token to its display form.
func (k ValueKind) Normalize(value string) string {
	if f, ok := kinds[k]; ok {
		return f.normalize(value)
	}
	return value
}

func keepValue(value string) string { return value }
