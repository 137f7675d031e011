package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/monitor"
	"github.com/agenthands/rsgwm/internal/core/store"
	"github.com/agenthands/rsgwm/internal/core/transform"
)

// Observer is told about every committed change. It is called synchronously
// after the change, so implementations must hand work off quickly.
type Observer interface {
	EntityCreated(v model.EntityView)
	EntitiesDeleted(ids []model.ID)
	AttributesChanged(id model.ID, attrs model.Attributes)
	ParentAdded(childID, parentID model.ID)
	ParentRemoved(childID, parentID model.ID)
	TransformUpdated(id model.ID, latest model.StampedTransform)
	IntervalChanged(id model.ID, interval model.Interval)
}

// Stats records request outcomes.
type Stats interface {
	ObserveRequest(kind, operation string, success bool, elapsed time.Duration)
	SetEntities(n int)
}

type Options struct {
	Store     store.Options
	QueueSize int
	Sink      monitor.EventSink
	Observer  Observer
	Stats     Stats
	// MonitorStats is handed to the monitor registry.
	MonitorStats monitor.Stats
	Logger       *slog.Logger
}

type WorldModel struct {
	Store    *store.Store
	Monitors *monitor.Registry

	// UUIDGenerator assigns ids to entities created without one.
	UUIDGenerator func() string
	// Now supplies the stamp for transform queries that carry none.
	Now func() time.Time

	observer Observer
	stats    Stats
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewWorldModel(opts Options) *WorldModel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = monitor.SinkFunc(func(monitor.Event) {})
	}
	return &WorldModel{
		Store: store.New(opts.Store),
		Monitors: monitor.NewRegistry(sink, monitor.Options{
			QueueSize: opts.QueueSize,
			Logger:    logger,
			Stats:     opts.MonitorStats,
		}),
		UUIDGenerator: func() string { return uuid.New().String() },
		Now:           time.Now,
		observer:      opts.Observer,
		stats:         opts.Stats,
		logger:        logger.With("component", "worldmodel"),
		tracer:        otel.Tracer("github.com/agenthands/rsgwm/internal/core"),
	}
}

// Close stops all monitors after delivering what they have queued.
func (w *WorldModel) Close() {
	w.Monitors.Close()
}

func (w *WorldModel) newID() (model.ID, error) {
	return model.ParseID(w.UUIDGenerator())
}

func (w *WorldModel) Root() model.ID {
	return w.Store.Root()
}

// Create inserts a new entity and fires creation monitors. A duplicate id
// returns the existing entity and an error wrapping model.ErrDuplicateID.
func (w *WorldModel) Create(ctx context.Context, n store.NewEntity) (model.EntityView, error) {
	v, err := w.Store.Create(n)
	if err != nil {
		return v, err
	}
	w.created(v)
	return v, nil
}

func (w *WorldModel) CreateRemoteRoot(ctx context.Context, id model.ID, attrs model.Attributes) (model.EntityView, error) {
	v, err := w.Store.CreateRemoteRoot(id, attrs)
	if err != nil {
		return v, err
	}
	w.created(v)
	return v, nil
}

func (w *WorldModel) created(v model.EntityView) {
	w.Monitors.NotifyCreated(v)
	if w.observer != nil {
		w.observer.EntityCreated(v)
		if v.IsTransform() {
			if latest, err := w.Store.Latest(v.ID); err == nil {
				w.observer.TransformUpdated(v.ID, latest)
			}
		}
	}
	w.logger.Debug("entity created", "id", v.ID, "kind", v.Kind)
}

func (w *WorldModel) AddParent(ctx context.Context, childID, parentID model.ID) error {
	if err := w.Store.AddParent(childID, parentID); err != nil {
		return err
	}
	if w.observer != nil {
		w.observer.ParentAdded(childID, parentID)
	}
	return nil
}

// SetAttributes stores attrs and notifies attribute monitors. Updates that
// leave the attributes as they were are still successful but silent.
func (w *WorldModel) SetAttributes(ctx context.Context, id model.ID, attrs model.Attributes, mode model.UpdateMode) error {
	before, after, err := w.Store.SetAttributes(id, attrs, mode)
	if err != nil {
		return err
	}
	if before.Equal(after) {
		return nil
	}
	w.Monitors.NotifyAttributeChange(id, before, after)
	if w.observer != nil {
		w.observer.AttributesChanged(id, after)
	}
	return nil
}

func (w *WorldModel) InsertTransform(ctx context.Context, id model.ID, entries ...model.StampedTransform) error {
	if err := w.Store.InsertTransform(id, entries...); err != nil {
		return err
	}
	if w.observer != nil {
		if latest, err := w.Store.Latest(id); err == nil {
			w.observer.TransformUpdated(id, latest)
		}
	}
	return nil
}

func (w *WorldModel) SetStart(ctx context.Context, id model.ID, start model.Stamp) error {
	if err := w.Store.SetStart(id, start); err != nil {
		return err
	}
	w.intervalChanged(id)
	return nil
}

func (w *WorldModel) SetEnd(ctx context.Context, id model.ID, end model.Stamp) error {
	if err := w.Store.SetEnd(id, end); err != nil {
		return err
	}
	w.intervalChanged(id)
	return nil
}

func (w *WorldModel) intervalChanged(id model.ID) {
	if w.observer == nil {
		return
	}
	if v, err := w.Store.View(id); err == nil {
		w.observer.IntervalChanged(id, v.Interval)
	}
}

// DeleteNode erases id together with the descendants it orphans.
func (w *WorldModel) DeleteNode(ctx context.Context, id model.ID) ([]model.ID, error) {
	erased, err := w.Store.DeleteNode(id)
	if err != nil {
		return nil, err
	}
	w.deleted(erased)
	return erased, nil
}

func (w *WorldModel) DeleteParent(ctx context.Context, id, parentID model.ID) ([]model.ID, error) {
	erased, err := w.Store.DeleteParentEdge(id, parentID)
	if err != nil {
		return nil, err
	}
	if len(erased) > 0 {
		w.deleted(erased)
	} else if w.observer != nil {
		w.observer.ParentRemoved(id, parentID)
	}
	return erased, nil
}

func (w *WorldModel) deleted(ids []model.ID) {
	if w.observer != nil {
		w.observer.EntitiesDeleted(ids)
	}
	w.logger.Debug("entities deleted", "ids", ids)
}

func (w *WorldModel) FindNodes(ctx context.Context, preds []model.Predicate, subgraph model.ID) ([]model.ID, error) {
	return w.Store.FindByAttributes(preds, subgraph)
}

// Transform returns the pose of id in the frame of referenceID at the given
// stamp.
func (w *WorldModel) Transform(ctx context.Context, id, referenceID model.ID, at model.Stamp) (model.Matrix44, error) {
	_, span := w.tracer.Start(ctx, "rsg.transform.lookup")
	defer span.End()
	return transform.Lookup(w.Store, referenceID, id, at)
}

// isWarning reports errors that leave the request successful.
func isWarning(err error) bool {
	return errors.Is(err, model.ErrDuplicateID)
}
