package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

type Attribute struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// NewAttribute marshals v into an Attribute. It panics only on values that
// encoding/json cannot represent, so callers pass plain data.
func NewAttribute(key string, v any) Attribute {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Attribute{Key: key, Value: raw}
}

// Attributes keeps insertion order and allows repeated keys.
type Attributes []Attribute

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for i, attr := range a {
		out[i] = Attribute{Key: attr.Key, Value: append(json.RawMessage(nil), attr.Value...)}
	}
	return out
}

// Get returns the value of the first attribute with the given key.
func (a Attributes) Get(key string) (json.RawMessage, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return nil, false
}

// Merge upserts by key. The first existing occurrence of every key in
// update is overwritten in place, further existing occurrences of that key
// are dropped and any extra update values for it follow directly. Keys
// that update does not mention keep their position and value.
func (a Attributes) Merge(update Attributes) Attributes {
	byKey := make(map[string][]json.RawMessage)
	var order []string
	for _, attr := range update {
		if _, ok := byKey[attr.Key]; !ok {
			order = append(order, attr.Key)
		}
		byKey[attr.Key] = append(byKey[attr.Key], attr.Value)
	}

	out := make(Attributes, 0, len(a)+len(update))
	placed := make(map[string]bool)
	for _, attr := range a {
		values, touched := byKey[attr.Key]
		if !touched {
			out = append(out, attr)
			continue
		}
		if placed[attr.Key] {
			continue
		}
		placed[attr.Key] = true
		for _, v := range values {
			out = append(out, Attribute{Key: attr.Key, Value: v})
		}
	}
	for _, key := range order {
		if placed[key] {
			continue
		}
		for _, v := range byKey[key] {
			out = append(out, Attribute{Key: key, Value: v})
		}
	}
	return out.Clone()
}

// JSONEqual compares two JSON documents by value rather than by bytes.
func JSONEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || !JSONEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// UpdateMode selects how UPDATE_ATTRIBUTES combines the new attributes
// with the stored ones.
type UpdateMode int

const (
	ModeReplace UpdateMode = iota
	ModeUpdate
)

func (m UpdateMode) String() string {
	if m == ModeUpdate {
		return "UPDATE"
	}
	return "REPLACE"
}

// ParseUpdateMode accepts the wire names; the empty string means REPLACE.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch s {
	case "", "REPLACE":
		return ModeReplace, nil
	case "UPDATE":
		return ModeUpdate, nil
	default:
		return 0, fmt.Errorf("unknown attribute update mode %q: %w", s, ErrMalformedRequest)
	}
}

// Apply returns the attributes that result from applying update in mode m.
func (m UpdateMode) Apply(current, update Attributes) Attributes {
	if m == ModeUpdate {
		return current.Merge(update)
	}
	return update.Clone()
}
