package model

import "encoding/json"

// Wildcard as a predicate value only requires the key to be present.
const Wildcard = "*"

// Predicate is one (key, value) condition of an attribute search.
type Predicate struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (p Predicate) IsWildcard() bool {
	var s string
	if err := json.Unmarshal(p.Value, &s); err != nil {
		return false
	}
	return s == Wildcard
}

// MatchAll reports whether attrs satisfy every predicate. An empty
// predicate list matches everything.
func MatchAll(attrs Attributes, preds []Predicate) bool {
	for _, p := range preds {
		if !matchOne(attrs, p) {
			return false
		}
	}
	return true
}

func matchOne(attrs Attributes, p Predicate) bool {
	wildcard := p.IsWildcard()
	for _, attr := range attrs {
		if attr.Key != p.Key {
			continue
		}
		if wildcard || JSONEqual(attr.Value, p.Value) {
			return true
		}
	}
	return false
}
