package core

import (
	"sync"
	"time"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/monitor"
)

type MockSink struct {
	mu     sync.Mutex
	Events []monitor.Event
}

func (m *MockSink) Publish(e monitor.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
}

func (m *MockSink) Received() []monitor.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]monitor.Event(nil), m.Events...)
}

type MockObserver struct {
	Created   []model.ID
	Deleted   []model.ID
	Changed   map[model.ID]model.Attributes
	Added     [][2]model.ID
	Removed   [][2]model.ID
	Latest    map[model.ID]model.StampedTransform
	Intervals map[model.ID]model.Interval
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		Changed:   map[model.ID]model.Attributes{},
		Latest:    map[model.ID]model.StampedTransform{},
		Intervals: map[model.ID]model.Interval{},
	}
}

func (m *MockObserver) EntityCreated(v model.EntityView) { m.Created = append(m.Created, v.ID) }
func (m *MockObserver) EntitiesDeleted(ids []model.ID)  { m.Deleted = append(m.Deleted, ids...) }
func (m *MockObserver) AttributesChanged(id model.ID, attrs model.Attributes) {
	m.Changed[id] = attrs
}
func (m *MockObserver) ParentAdded(child, parent model.ID) {
	m.Added = append(m.Added, [2]model.ID{child, parent})
}
func (m *MockObserver) ParentRemoved(child, parent model.ID) {
	m.Removed = append(m.Removed, [2]model.ID{child, parent})
}
func (m *MockObserver) TransformUpdated(id model.ID, latest model.StampedTransform) {
	m.Latest[id] = latest
}
func (m *MockObserver) IntervalChanged(id model.ID, interval model.Interval) {
	m.Intervals[id] = interval
}

type observedRequest struct {
	Kind      string
	Operation string
	Success   bool
}

type MockStats struct {
	Requests []observedRequest
	Entities int
}

func (m *MockStats) ObserveRequest(kind, operation string, success bool, _ time.Duration) {
	m.Requests = append(m.Requests, observedRequest{kind, operation, success})
}

func (m *MockStats) SetEntities(n int) { m.Entities = n }
