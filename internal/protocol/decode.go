package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/monitor"
	"github.com/agenthands/rsgwm/internal/core/store"
)

var validate = validator.New()

// Decode unmarshals one envelope into T and runs its validate tags. Any
// failure wraps model.ErrMalformedRequest.
func Decode[T any](data []byte) (T, error) {
	var zero T
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return zero, fmt.Errorf("envelope is not a JSON object: %w", model.ErrMalformedRequest)
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal envelope: %v: %w", err, model.ErrMalformedRequest)
	}
	if err := validate.Struct(result); err != nil {
		return zero, fmt.Errorf("invalid envelope: %v: %w", err, model.ErrMalformedRequest)
	}
	return result, nil
}

// Peek reads only the shared header to find out which envelope data holds.
func Peek(data []byte) (Header, error) {
	return Decode[Header](data)
}

func ParseIDs(raw []string) ([]model.ID, error) {
	if raw == nil {
		return nil, nil
	}
	ids := make([]model.ID, 0, len(raw))
	for _, s := range raw {
		id, err := model.ParseID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func FormatIDs(ids []model.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// History converts wire history entries.
func History(entries []HistoryEntry) ([]model.StampedTransform, error) {
	out := make([]model.StampedTransform, 0, len(entries))
	for i, e := range entries {
		stamp, err := e.Stamp.Decode()
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %w", i, err)
		}
		if e.Transform.Type != "" && e.Transform.Type != MatrixType {
			return nil, fmt.Errorf("history[%d]: unsupported transform type %q: %w", i, e.Transform.Type, model.ErrMalformedRequest)
		}
		m, err := model.MatrixFromRows(e.Transform.Matrix)
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %w", i, err)
		}
		out = append(out, model.StampedTransform{Stamp: stamp, Matrix: m, Unit: e.Transform.Unit})
	}
	return out, nil
}

func EncodeTransform(st model.StampedTransform) *Transform {
	unit := st.Unit
	if unit == "" {
		unit = model.DefaultUnit
	}
	return &Transform{Type: MatrixType, Matrix: st.Matrix.Rows(), Unit: unit}
}

// NewEntity turns the node of a CREATE into a store request. id is the
// already resolved entity id.
func (n *Node) NewEntity(id, parentID model.ID) (store.NewEntity, error) {
	kind, err := model.ParseKind(n.GraphType)
	if err != nil {
		return store.NewEntity{}, err
	}
	out := store.NewEntity{
		ID:              id,
		Kind:            kind,
		SemanticContext: n.SemanticContext,
		Attributes:      n.Attributes,
		ParentID:        parentID,
	}
	if out.SourceIDs, err = ParseIDs(n.SourceIDs); err != nil {
		return out, err
	}
	if out.TargetIDs, err = ParseIDs(n.TargetIDs); err != nil {
		return out, err
	}
	if out.Start, err = decodeOptionalStamp(n.Start); err != nil {
		return out, err
	}
	if out.End, err = decodeOptionalStamp(n.End); err != nil {
		return out, err
	}
	if len(n.History) > 0 {
		if out.History, err = History(n.History); err != nil {
			return out, err
		}
	}
	return out, nil
}

func EncodeEvent(e monitor.Event) MonitorEvent {
	out := MonitorEvent{
		Header:        Header{WorldModelType: TypeMonitor},
		MonitorID:     e.MonitorID,
		EventID:       e.EventID,
		Stamp:         MillisStamp(e.Stamp),
		Value:         e.Value,
		PreviousValue: e.PreviousValue,
	}
	if e.Kind == monitor.KindCreation {
		out.NewNodeID = e.NewNodeID.String()
	} else {
		out.ID = e.EntityID.String()
		out.AttributeKey = e.Key
	}
	return out
}
