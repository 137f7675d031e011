package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agenthands/rsgwm/internal/core/model"
)

type Kind int

const (
	// KindAttribute watches one key of one entity.
	KindAttribute Kind = iota
	// KindCreation watches for new entities matching a predicate set.
	KindCreation
)

func (k Kind) String() string {
	if k == KindCreation {
		return "oncreate"
	}
	return "onattributechange"
}

type Target struct {
	EntityID   model.ID
	Key        string
	Predicates []model.Predicate
}

type Event struct {
	MonitorID string
	EventID   string
	Kind      Kind
	Stamp     model.Stamp

	// creation events
	NewNodeID model.ID

	// attribute events
	EntityID      model.ID
	Key           string
	Value         json.RawMessage
	PreviousValue json.RawMessage
}

// EventSink receives events from the per-monitor dispatch goroutines.
// Implementations must be safe for concurrent use.
type EventSink interface {
	Publish(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Stats is notified of every delivered and dropped event.
type Stats interface {
	EventDelivered(kind Kind)
	EventDropped(kind Kind)
}

type Options struct {
	QueueSize int
	Logger    *slog.Logger
	Stats     Stats
	Now       func() time.Time
}

type monitor struct {
	id      string
	kind    Kind
	target  Target
	started bool
	queue   chan Event
}

// Registry owns all monitors of one world model. Notify* calls never
// block: each monitor has a bounded queue drained by its own goroutine,
// and events that do not fit are dropped.
type Registry struct {
	sink      EventSink
	queueSize int
	logger    *slog.Logger
	stats     Stats
	now       func() time.Time

	mu       sync.RWMutex
	monitors map[string]*monitor
	closed   bool
	wg       sync.WaitGroup
}

func NewRegistry(sink EventSink, opts Options) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		sink:      sink,
		queueSize: opts.QueueSize,
		logger:    opts.Logger.With("component", "monitor"),
		stats:     opts.Stats,
		now:       opts.Now,
		monitors:  make(map[string]*monitor),
	}
}

func (r *Registry) Register(id string, kind Kind, target Target) error {
	if id == "" {
		return fmt.Errorf("register monitor: missing id: %w", model.ErrMalformedRequest)
	}
	if kind == KindAttribute && (target.EntityID == "" || target.Key == "") {
		return fmt.Errorf("register monitor %s: attribute monitor needs id and key: %w", id, model.ErrMalformedRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("register monitor %s: registry closed", id)
	}
	if _, ok := r.monitors[id]; ok {
		return fmt.Errorf("monitor %s: %w", id, model.ErrDuplicateID)
	}

	m := &monitor{
		id:     id,
		kind:   kind,
		target: target,
		queue:  make(chan Event, r.queueSize),
	}
	r.monitors[id] = m
	r.wg.Add(1)
	go r.drain(m)

	r.logger.Debug("monitor registered", "monitor", id, "kind", kind)
	return nil
}

func (r *Registry) Start(id string) error {
	return r.setStarted(id, true)
}

func (r *Registry) Stop(id string) error {
	return r.setStarted(id, false)
}

func (r *Registry) setStarted(id string, started bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[id]
	if !ok {
		return fmt.Errorf("monitor %s: %w", id, model.ErrNotFound)
	}
	m.started = started
	return nil
}

// Unregister removes the monitor. Events already queued are still delivered.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[id]
	if !ok {
		return fmt.Errorf("monitor %s: %w", id, model.ErrNotFound)
	}
	delete(r.monitors, id)
	close(m.queue)
	return nil
}

// IDs returns the registered monitor ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.monitors))
	for id := range r.monitors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NotifyAttributeChange compares before and after for every started
// attribute monitor on id. A key only fires when it is present afterwards
// and its value differs from the previous one.
func (r *Registry) NotifyAttributeChange(id model.ID, before, after model.Attributes) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.monitors {
		if !m.started || m.kind != KindAttribute || m.target.EntityID != id {
			continue
		}
		value, ok := after.Get(m.target.Key)
		if !ok {
			continue
		}
		prev, hadPrev := before.Get(m.target.Key)
		if hadPrev && model.JSONEqual(prev, value) {
			continue
		}
		r.enqueue(m, Event{
			EntityID:      id,
			Key:           m.target.Key,
			Value:         value,
			PreviousValue: prev,
		})
	}
}

// NotifyCreated fires every started creation monitor whose predicates the
// new entity satisfies.
func (r *Registry) NotifyCreated(v model.EntityView) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.monitors {
		if !m.started || m.kind != KindCreation {
			continue
		}
		if !model.MatchAll(v.Attributes, m.target.Predicates) {
			continue
		}
		r.enqueue(m, Event{NewNodeID: v.ID})
	}
}

// enqueue requires r.mu held for reading so that the queue is not closed
// underneath the send.
func (r *Registry) enqueue(m *monitor, e Event) {
	e.MonitorID = m.id
	e.EventID = ulid.Make().String()
	e.Kind = m.kind
	e.Stamp = model.StampFromTime(r.now())

	select {
	case m.queue <- e:
	default:
		r.logger.Warn("monitor queue full, dropping event", "monitor", m.id, "event", e.EventID)
		if r.stats != nil {
			r.stats.EventDropped(m.kind)
		}
	}
}

func (r *Registry) drain(m *monitor) {
	defer r.wg.Done()
	for e := range m.queue {
		r.sink.Publish(e)
		if r.stats != nil {
			r.stats.EventDelivered(m.kind)
		}
	}
}

// Close unregisters every monitor and waits until all queued events are
// delivered.
func (r *Registry) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for id, m := range r.monitors {
			delete(r.monitors, id)
			close(m.queue)
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}
