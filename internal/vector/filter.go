package vector

import "encoding/json"

// Filter is a tagged-variant predicate over vector payload fields. The
// three variants are equality, numeric range, and conjunction; that is the
// whole filter language the engine needs, and keeping it closed keeps
// every backend translation total.
type Filter interface {
	filterNode()
	// Matches evaluates the filter against a payload. Backends that push
	// filtering server-side (Qdrant) only use this in tests; the in-memory
	// index uses it directly.
	Matches(payload map[string]any) bool
}

// Eq requires payload[Field] == Value. Numeric values compare loosely
// (int vs float64 from JSON round-trips).
type Eq struct {
	Field string
	Value any
}

// Range requires GTE <= payload[Field] <= LTE; nil bounds are open.
type Range struct {
	Field string
	GTE   *float64
	LTE   *float64
}

// All is the conjunction of its members. An empty All matches everything.
type All []Filter

func (Eq) filterNode()    {}
func (Range) filterNode() {}
func (All) filterNode()   {}

// Matches implements Filter.
func (f Eq) Matches(payload map[string]any) bool {
	v, ok := payload[f.Field]
	if !ok {
		return false
	}
	if fv, ok1 := toFloat(v); ok1 {
		if ff, ok2 := toFloat(f.Value); ok2 {
			return fv == ff
		}
		return false
	}
	return v == f.Value
}

// Matches implements Filter.
func (f Range) Matches(payload map[string]any) bool {
	v, ok := payload[f.Field]
	if !ok {
		return false
	}
	fv, ok := toFloat(v)
	if !ok {
		return false
	}
	if f.GTE != nil && fv < *f.GTE {
		return false
	}
	if f.LTE != nil && fv > *f.LTE {
		return false
	}
	return true
}

// Matches implements Filter.
func (f All) Matches(payload map[string]any) bool {
	for _, sub := range f {
		if sub == nil {
			continue
		}
		if !sub.Matches(payload) {
			return false
		}
	}
	return true
}

// toFloat converts the numeric types a payload can carry after JSON
// round-trips.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// qdrantClause converts one filter node into Qdrant's must-clause JSON.
// All flattens into multiple clauses.
func qdrantClauses(f Filter) []map[string]any {
	switch node := f.(type) {
	case nil:
		return nil
	case Eq:
		return []map[string]any{{
			"key":   node.Field,
			"match": map[string]any{"value": node.Value},
		}}
	case Range:
		r := map[string]any{}
		if node.GTE != nil {
			r["gte"] = *node.GTE
		}
		if node.LTE != nil {
			r["lte"] = *node.LTE
		}
		return []map[string]any{{
			"key":   node.Field,
			"range": r,
		}}
	case All:
		var out []map[string]any
		for _, sub := range node {
			out = append(out, qdrantClauses(sub)...)
		}
		return out
	default:
		return nil
	}
}
