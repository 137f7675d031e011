package store

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/transform"
)

type entity struct {
	id       model.ID
	kind     model.Kind
	semantic string
	attrs    model.Attributes

	parents  []model.ID
	children []model.ID

	sources  []model.ID
	targets  []model.ID
	interval model.Interval
	history  *transform.History

	// connections that list this entity as a source or target
	refs []model.ID

	remoteRoot bool
	deleted    bool
}

func (e *entity) isTransform() bool {
	return e.kind == model.KindConnection && e.semantic == model.SemanticTransform
}

// canParent reports whether children may be attached. Transforms act as
// frames and own children like groups do.
func (e *entity) canParent() bool {
	return e.kind == model.KindGroup || e.isTransform()
}

func (e *entity) view() model.EntityView {
	return model.EntityView{
		ID:              e.id,
		Kind:            e.kind,
		SemanticContext: e.semantic,
		Attributes:      e.attrs.Clone(),
		Parents:         cloneIDs(e.parents),
		Children:        cloneIDs(e.children),
		SourceIDs:       cloneIDs(e.sources),
		TargetIDs:       cloneIDs(e.targets),
		Interval:        e.interval,
	}
}

type Options struct {
	RootID               model.ID
	Stripes              int
	MaxHistoryDuration   time.Duration
	AutoMountRemoteRoots bool
}

// Store holds the scene graph. Per-entity state is guarded by striped
// locks picked by hashing the id. Structural changes (creating, deleting,
// re-parenting) also hold the structure mutex so that edges spanning
// several entities change together; attribute and history updates only
// take the stripe of the entity they touch.
type Store struct {
	rootID    model.ID
	maxAge    time.Duration
	autoMount bool

	structure sync.Mutex
	stripes   []sync.RWMutex

	indexMu     sync.RWMutex
	index       map[model.ID]*entity
	erased      map[model.ID]struct{}
	remoteRoots []model.ID
}

func New(opts Options) *Store {
	if opts.RootID == "" {
		opts.RootID = model.DefaultRootID
	}
	if opts.Stripes <= 0 {
		opts.Stripes = 64
	}
	s := &Store{
		rootID:    opts.RootID,
		maxAge:    opts.MaxHistoryDuration,
		autoMount: opts.AutoMountRemoteRoots,
		stripes:   make([]sync.RWMutex, opts.Stripes),
		index:     make(map[model.ID]*entity),
		erased:    make(map[model.ID]struct{}),
	}
	s.index[s.rootID] = &entity{
		id:       s.rootID,
		kind:     model.KindGroup,
		interval: model.Unbounded(),
	}
	return s
}

func (s *Store) Root() model.ID {
	return s.rootID
}

func (s *Store) Len() int {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return len(s.index)
}

func (s *Store) RemoteRoots() []model.ID {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return cloneIDs(s.remoteRoots)
}

func (s *Store) stripe(id model.ID) int {
	return int(xxhash.Sum64String(string(id)) % uint64(len(s.stripes)))
}

// lock write-locks the stripes of all ids in ascending stripe order.
func (s *Store) lock(ids ...model.ID) func() {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[s.stripe(id)] = struct{}{}
	}
	order := make([]int, 0, len(set))
	for i := range set {
		order = append(order, i)
	}
	sort.Ints(order)
	for _, i := range order {
		s.stripes[i].Lock()
	}
	return func() {
		for j := len(order) - 1; j >= 0; j-- {
			s.stripes[order[j]].Unlock()
		}
	}
}

func (s *Store) rlock(id model.ID) func() {
	m := &s.stripes[s.stripe(id)]
	m.RLock()
	return m.RUnlock
}

func (s *Store) get(id model.ID) (*entity, bool) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	e, ok := s.index[id]
	return e, ok
}

// read runs fn on a live entity under its stripe read lock.
func (s *Store) read(id model.ID, fn func(e *entity)) error {
	e, ok := s.get(id)
	if !ok {
		return notFound(id)
	}
	unlock := s.rlock(id)
	defer unlock()
	if e.deleted {
		return notFound(id)
	}
	fn(e)
	return nil
}

// write runs fn on a live entity under its stripe write lock.
func (s *Store) write(id model.ID, fn func(e *entity) error) error {
	e, ok := s.get(id)
	if !ok {
		return notFound(id)
	}
	unlock := s.lock(id)
	defer unlock()
	if e.deleted {
		return notFound(id)
	}
	return fn(e)
}

func (s *Store) View(id model.ID) (model.EntityView, error) {
	var v model.EntityView
	err := s.read(id, func(e *entity) { v = e.view() })
	return v, err
}

func (s *Store) Exists(id model.ID) bool {
	return s.read(id, func(*entity) {}) == nil
}

func cloneIDs(ids []model.ID) []model.ID {
	if ids == nil {
		return nil
	}
	return append([]model.ID(nil), ids...)
}

func containsID(ids []model.ID, id model.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func appendUnique(ids []model.ID, id model.ID) []model.ID {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}

func removeID(ids []model.ID, id model.ID) []model.ID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
