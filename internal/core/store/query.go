package store

import (
	"fmt"
	"sort"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/transform"
)

// FindByAttributes returns the ids of all entities matching every predicate,
// sorted. A non-empty subgraph limits the search to that entity and
// everything reachable from it over child edges.
func (s *Store) FindByAttributes(preds []model.Predicate, subgraph model.ID) ([]model.ID, error) {
	var scope []model.ID
	if subgraph != "" {
		var err error
		scope, err = s.descendants(subgraph)
		if err != nil {
			return nil, err
		}
	} else {
		s.indexMu.RLock()
		scope = make([]model.ID, 0, len(s.index))
		for id := range s.index {
			scope = append(scope, id)
		}
		s.indexMu.RUnlock()
	}

	ids := make([]model.ID, 0)
	for _, id := range scope {
		var match bool
		if err := s.read(id, func(e *entity) { match = model.MatchAll(e.attrs, preds) }); err != nil {
			// deleted since the scope was taken
			continue
		}
		if match {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) descendants(id model.ID) ([]model.ID, error) {
	if !s.Exists(id) {
		return nil, notFound(id)
	}
	seen := map[model.ID]bool{id: true}
	out := []model.ID{id}
	for i := 0; i < len(out); i++ {
		var children []model.ID
		_ = s.read(out[i], func(e *entity) { children = cloneIDs(e.children) })
		for _, c := range children {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

type transformEdge struct {
	id       model.ID
	live     bool
	sources  []model.ID
	targets  []model.ID
	interval model.Interval
}

// TransformHops lists the transform graph edges leaving id at the given
// stamp, ordered by connection id with rigid attachments first.
func (s *Store) TransformHops(id model.ID, at model.Stamp) ([]transform.Hop, error) {
	var (
		self     *entity
		parents  []model.ID
		children []model.ID
		refs     []model.ID
		targets  []model.ID
	)
	err := s.read(id, func(e *entity) {
		self = e
		parents = cloneIDs(e.parents)
		children = cloneIDs(e.children)
		refs = cloneIDs(e.refs)
		targets = cloneIDs(e.targets)
	})
	if err != nil {
		return nil, err
	}

	var hops []transform.Hop
	if self.isTransform() {
		for _, c := range children {
			hops = append(hops, transform.Hop{To: c, Rigid: true})
		}
		for _, t := range targets {
			if t != id {
				hops = append(hops, transform.Hop{To: t, Rigid: true})
			}
		}
	}
	for _, p := range parents {
		if parent, ok := s.get(p); ok && parent.isTransform() {
			hops = append(hops, transform.Hop{To: p, Rigid: true})
		}
	}

	for _, ref := range refs {
		edge := s.transformEdge(ref)
		if !edge.live || !edge.interval.Contains(at) {
			continue
		}
		if containsID(edge.sources, id) {
			for _, t := range edge.targets {
				if t != id {
					hops = append(hops, transform.Hop{Via: ref, To: t})
				}
			}
		}
		if containsID(edge.targets, id) {
			for _, src := range edge.sources {
				if src != id {
					hops = append(hops, transform.Hop{Via: ref, To: src, Inverse: true})
				}
			}
			if ref != id {
				hops = append(hops, transform.Hop{To: ref, Rigid: true})
			}
		}
	}

	sort.SliceStable(hops, func(i, j int) bool {
		a, b := hops[i], hops[j]
		if a.Via != b.Via {
			return a.Via < b.Via
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return !a.Inverse && b.Inverse
	})
	return hops, nil
}

func (s *Store) transformEdge(id model.ID) transformEdge {
	edge := transformEdge{id: id}
	_ = s.read(id, func(e *entity) {
		if !e.isTransform() {
			return
		}
		edge.live = true
		edge.sources = cloneIDs(e.sources)
		edge.targets = cloneIDs(e.targets)
		edge.interval = e.interval
	})
	return edge
}

// TransformAt returns the history entry of via that was valid at the stamp.
func (s *Store) TransformAt(via model.ID, at model.Stamp) (model.StampedTransform, error) {
	var (
		entry model.StampedTransform
		err   error
	)
	readErr := s.read(via, func(e *entity) {
		if !e.isTransform() {
			err = fmt.Errorf("entity %s: %w", via, model.ErrNotATransform)
			return
		}
		var ok bool
		if entry, ok = e.history.At(at); !ok {
			err = fmt.Errorf("transform %s at %s: %w", via, at, model.ErrNoDataAtTime)
		}
	})
	if readErr != nil {
		return entry, readErr
	}
	return entry, err
}

var _ transform.Graph = (*Store)(nil)
