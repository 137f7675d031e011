// Package mirror replicates scene graph changes into a Cypher graph database
// so the world model can be inspected with graph tooling. The replica is
// best effort: writes happen asynchronously and a full queue drops changes.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/agenthands/rsgwm/internal/core"
	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/driver"
)

var errQueueFull = errors.New("mirror queue full")

type Stats interface {
	MirrorWrite(err error)
}

type Options struct {
	// RootID is the local root Group. It exists before any change is
	// observed, so Run saves it first.
	RootID    model.ID
	QueueSize int
	Logger    *slog.Logger
	Stats     Stats
}

type write struct {
	op     string
	query  string
	params map[string]any
}

// Mirror is a core.Observer that forwards every change to a GraphDriver.
type Mirror struct {
	driver driver.GraphDriver
	rootID model.ID
	queue  chan write
	logger *slog.Logger
	stats  Stats
}

var _ core.Observer = (*Mirror)(nil)

func New(d driver.GraphDriver, opts Options) *Mirror {
	size := opts.QueueSize
	if size <= 0 {
		size = 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := opts.RootID
	if root == "" {
		root = model.DefaultRootID
	}
	return &Mirror{
		driver: d,
		rootID: root,
		queue:  make(chan write, size),
		logger: logger.With("component", "mirror"),
		stats:  opts.Stats,
	}
}

// Run writes queued changes until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.driver.BuildIndices(ctx); err != nil {
		return err
	}
	m.execute(ctx, saveEntity(model.EntityView{
		ID:       m.rootID,
		Kind:     model.KindGroup,
		Interval: model.Unbounded(),
	}))
	for {
		select {
		case <-ctx.Done():
			return nil
		case w := <-m.queue:
			m.execute(ctx, w)
		}
	}
}

func (m *Mirror) execute(ctx context.Context, w write) {
	_, err := m.driver.ExecuteQuery(ctx, w.query, w.params)
	if err != nil {
		m.logger.Warn("mirror write failed", "op", w.op, "error", err)
	}
	if m.stats != nil {
		m.stats.MirrorWrite(err)
	}
}

func (m *Mirror) enqueue(ws ...write) {
	for _, w := range ws {
		select {
		case m.queue <- w:
		default:
			m.logger.Warn("mirror queue full, dropping change", "op", w.op)
			if m.stats != nil {
				m.stats.MirrorWrite(errQueueFull)
			}
		}
	}
}

func (m *Mirror) EntityCreated(v model.EntityView) {
	ws := []write{saveEntity(v)}
	for _, p := range v.Parents {
		ws = append(ws, parentEdge(driver.SaveParentEdgeQuery, "save_parent", v.ID, p))
	}
	if len(v.SourceIDs) > 0 {
		ws = append(ws, write{op: "save_sources", query: driver.SaveSourcesQuery, params: endpoints(v.ID, v.SourceIDs)})
	}
	if len(v.TargetIDs) > 0 {
		ws = append(ws, write{op: "save_targets", query: driver.SaveTargetsQuery, params: endpoints(v.ID, v.TargetIDs)})
	}
	m.enqueue(ws...)
}

func (m *Mirror) EntitiesDeleted(ids []model.ID) {
	m.enqueue(write{
		op:     "delete_entities",
		query:  driver.DeleteEntitiesQuery,
		params: map[string]any{"ids": idStrings(ids)},
	})
}

func (m *Mirror) AttributesChanged(id model.ID, attrs model.Attributes) {
	m.enqueue(write{
		op:     "set_attributes",
		query:  driver.SetAttributesQuery,
		params: map[string]any{"id": id.String(), "attributes": encodeAttributes(attrs)},
	})
}

func (m *Mirror) ParentAdded(childID, parentID model.ID) {
	m.enqueue(parentEdge(driver.SaveParentEdgeQuery, "save_parent", childID, parentID))
}

func (m *Mirror) ParentRemoved(childID, parentID model.ID) {
	m.enqueue(parentEdge(driver.DeleteParentEdgeQuery, "delete_parent", childID, parentID))
}

func (m *Mirror) TransformUpdated(id model.ID, latest model.StampedTransform) {
	flat := make([]float64, 0, 16)
	for _, row := range latest.Matrix {
		flat = append(flat, row[:]...)
	}
	m.enqueue(write{
		op:    "set_transform",
		query: driver.SetTransformQuery,
		params: map[string]any{
			"id":     id.String(),
			"stamp":  int64(latest.Stamp),
			"matrix": flat,
			"unit":   latest.Unit,
		},
	})
}

func (m *Mirror) IntervalChanged(id model.ID, interval model.Interval) {
	m.enqueue(write{
		op:    "set_interval",
		query: driver.SetIntervalQuery,
		params: map[string]any{
			"id":    id.String(),
			"start": int64(interval.Start),
			"end":   int64(interval.End),
		},
	})
}

func saveEntity(v model.EntityView) write {
	return write{
		op:    "save_entity",
		query: driver.SaveEntityQuery,
		params: map[string]any{
			"id":               v.ID.String(),
			"kind":             v.Kind.String(),
			"semantic_context": v.SemanticContext,
			"attributes":       encodeAttributes(v.Attributes),
			"start":            int64(v.Interval.Start),
			"end":              int64(v.Interval.End),
		},
	}
}

func parentEdge(query, op string, childID, parentID model.ID) write {
	return write{
		op:     op,
		query:  query,
		params: map[string]any{"child_id": childID.String(), "parent_id": parentID.String()},
	}
}

func endpoints(id model.ID, ids []model.ID) map[string]any {
	return map[string]any{"id": id.String(), "ids": idStrings(ids)}
}

func idStrings(ids []model.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// encodeAttributes stores the attribute list as one JSON string property;
// attribute values are arbitrary JSON which graph properties cannot nest.
func encodeAttributes(attrs model.Attributes) string {
	if attrs == nil {
		attrs = model.Attributes{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "[]"
	}
	return string(data)
}
