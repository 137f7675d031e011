package store

import (
	"fmt"
	"sort"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/transform"
)

// NewEntity describes an entity to create. ID must already be assigned;
// generating ids is the caller's business.
type NewEntity struct {
	ID              model.ID
	Kind            model.Kind
	SemanticContext string
	Attributes      model.Attributes
	ParentID        model.ID

	SourceIDs []model.ID
	TargetIDs []model.ID
	Start     *model.Stamp
	End       *model.Stamp
	History   []model.StampedTransform
}

func (n NewEntity) isTransform() bool {
	return n.Kind == model.KindConnection && n.SemanticContext == model.SemanticTransform
}

func (s *Store) CreateNode(id, parentID model.ID, attrs model.Attributes) (model.EntityView, error) {
	return s.Create(NewEntity{ID: id, Kind: model.KindNode, ParentID: parentID, Attributes: attrs})
}

func (s *Store) CreateGroup(id, parentID model.ID, attrs model.Attributes) (model.EntityView, error) {
	return s.Create(NewEntity{ID: id, Kind: model.KindGroup, ParentID: parentID, Attributes: attrs})
}

func (s *Store) CreateConnection(n NewEntity) (model.EntityView, error) {
	n.Kind = model.KindConnection
	return s.Create(n)
}

// Create validates n against the current graph and inserts it. An id that
// is already taken yields the existing entity together with ErrDuplicateID
// and leaves the store untouched.
func (s *Store) Create(n NewEntity) (model.EntityView, error) {
	if n.ID == "" {
		return model.EntityView{}, fmt.Errorf("create: missing id: %w", model.ErrMalformedRequest)
	}
	if n.Kind != model.KindConnection && (len(n.SourceIDs) > 0 || len(n.TargetIDs) > 0) {
		return model.EntityView{}, fmt.Errorf("create %s: only connections have endpoints: %w", n.ID, model.ErrMalformedRequest)
	}
	if n.isTransform() && len(n.History) == 0 {
		return model.EntityView{}, fmt.Errorf("create %s: transform needs a history: %w", n.ID, model.ErrMalformedRequest)
	}
	if !n.isTransform() && len(n.History) > 0 {
		return model.EntityView{}, fmt.Errorf("create %s: history on a non-transform: %w", n.ID, model.ErrNotATransform)
	}

	s.structure.Lock()
	defer s.structure.Unlock()

	if err := s.checkFresh(n.ID); err != nil {
		return s.existingView(n.ID), fmt.Errorf("create %s: %w", n.ID, err)
	}

	parent, ok := s.get(n.ParentID)
	if !ok || !parent.canParent() {
		return model.EntityView{}, fmt.Errorf("create %s under %s: %w", n.ID, n.ParentID, model.ErrParentNotFound)
	}

	endpoints := make([]model.ID, 0, len(n.SourceIDs)+len(n.TargetIDs))
	endpoints = append(endpoints, n.SourceIDs...)
	endpoints = append(endpoints, n.TargetIDs...)
	for _, ref := range endpoints {
		if ref == n.ID {
			continue
		}
		if _, ok := s.get(ref); !ok {
			return model.EntityView{}, fmt.Errorf("create %s: endpoint %s: %w", n.ID, ref, model.ErrDanglingReference)
		}
	}

	e := &entity{
		id:       n.ID,
		kind:     n.Kind,
		semantic: n.SemanticContext,
		attrs:    n.Attributes.Clone(),
		parents:  []model.ID{parent.id},
		sources:  cloneIDs(n.SourceIDs),
		targets:  cloneIDs(n.TargetIDs),
		interval: model.Unbounded(),
	}
	if n.Start != nil {
		e.interval.Start = *n.Start
	}
	if n.End != nil {
		e.interval.End = *n.End
	}
	if n.isTransform() {
		e.history = transform.NewHistory(s.maxAge)
		for _, entry := range n.History {
			e.history.Insert(entry)
		}
	}

	unlock := s.lock(append([]model.ID{n.ID, parent.id}, endpoints...)...)
	defer unlock()

	s.indexMu.Lock()
	s.index[e.id] = e
	s.indexMu.Unlock()

	parent.children = append(parent.children, e.id)
	for _, ref := range endpoints {
		target := e
		if ref != e.id {
			target, _ = s.get(ref)
		}
		target.refs = appendUnique(target.refs, e.id)
	}
	return e.view(), nil
}

// CreateRemoteRoot creates a Group without a parent and records it as the
// root of a remote world model. With auto-mounting enabled the local root
// becomes its parent.
func (s *Store) CreateRemoteRoot(id model.ID, attrs model.Attributes) (model.EntityView, error) {
	if id == "" {
		return model.EntityView{}, fmt.Errorf("create remote root: missing id: %w", model.ErrMalformedRequest)
	}

	s.structure.Lock()
	defer s.structure.Unlock()

	if err := s.checkFresh(id); err != nil {
		return s.existingView(id), fmt.Errorf("create remote root %s: %w", id, err)
	}

	e := &entity{
		id:         id,
		kind:       model.KindGroup,
		attrs:      attrs.Clone(),
		interval:   model.Unbounded(),
		remoteRoot: true,
	}
	root, _ := s.get(s.rootID)

	unlock := s.lock(id, s.rootID)
	defer unlock()

	if s.autoMount {
		e.parents = []model.ID{root.id}
		root.children = append(root.children, id)
	}

	s.indexMu.Lock()
	s.index[id] = e
	s.remoteRoots = append(s.remoteRoots, id)
	s.indexMu.Unlock()

	return e.view(), nil
}

// AddParent adds one more parent edge to an existing entity.
func (s *Store) AddParent(childID, parentID model.ID) error {
	s.structure.Lock()
	defer s.structure.Unlock()

	child, ok := s.get(childID)
	if !ok {
		return notFound(childID)
	}
	parent, ok := s.get(parentID)
	if !ok || !parent.canParent() {
		return fmt.Errorf("add parent %s to %s: %w", parentID, childID, model.ErrParentNotFound)
	}
	if childID == parentID {
		return fmt.Errorf("add parent %s to itself: %w", parentID, model.ErrMalformedRequest)
	}
	if containsID(child.parents, parentID) {
		return fmt.Errorf("parent edge %s -> %s: %w", parentID, childID, model.ErrDuplicateID)
	}

	unlock := s.lock(childID, parentID)
	defer unlock()

	child.parents = append(child.parents, parentID)
	parent.children = append(parent.children, childID)
	return nil
}

// DeleteParentEdge removes the edge parentID -> id. When it was the last
// parent the entity is erased as by DeleteNode. The root only ever loses
// the edge.
func (s *Store) DeleteParentEdge(id, parentID model.ID) ([]model.ID, error) {
	s.structure.Lock()
	defer s.structure.Unlock()

	child, ok := s.get(id)
	if !ok {
		return nil, notFound(id)
	}
	if !containsID(child.parents, parentID) {
		return nil, fmt.Errorf("parent edge %s -> %s: %w", parentID, id, model.ErrNotFound)
	}
	if len(child.parents) > 1 || id == s.rootID {
		parent, _ := s.get(parentID)
		unlock := s.lock(id, parentID)
		defer unlock()
		child.parents = removeID(child.parents, parentID)
		parent.children = removeID(parent.children, id)
		return nil, nil
	}
	return s.deleteLocked(id)
}

// DeleteNode erases id. Groups take along every descendant that is left
// without a parent. Nothing is erased if any erased entity is still an
// endpoint of a connection that survives.
func (s *Store) DeleteNode(id model.ID) ([]model.ID, error) {
	if id == s.rootID {
		return nil, fmt.Errorf("delete %s: %w", id, model.ErrRootImmutable)
	}

	s.structure.Lock()
	defer s.structure.Unlock()

	if _, ok := s.get(id); !ok {
		return nil, notFound(id)
	}
	return s.deleteLocked(id)
}

// deleteLocked requires the structure mutex. Structural fields are only
// written under it, so they can be read here without stripe locks.
func (s *Store) deleteLocked(id model.ID) ([]model.ID, error) {
	erase := map[model.ID]*entity{}
	first, _ := s.get(id)
	erase[id] = first
	order := []model.ID{id}

	for changed := true; changed; {
		changed = false
		for _, cur := range order {
			for _, childID := range erase[cur].children {
				if _, done := erase[childID]; done || childID == s.rootID {
					continue
				}
				child, _ := s.get(childID)
				if !allIn(child.parents, erase) {
					continue
				}
				erase[childID] = child
				order = append(order, childID)
				changed = true
			}
		}
	}

	for _, cur := range order {
		for _, ref := range erase[cur].refs {
			if _, ok := erase[ref]; !ok {
				return nil, fmt.Errorf("delete %s: %s is referenced by %s: %w", id, cur, ref, model.ErrStillReferenced)
			}
		}
	}

	var touched []model.ID
	for _, cur := range order {
		e := erase[cur]
		touched = append(touched, cur)
		touched = append(touched, e.parents...)
		touched = append(touched, e.children...)
		touched = append(touched, e.sources...)
		touched = append(touched, e.targets...)
	}
	unlock := s.lock(touched...)
	defer unlock()

	for _, cur := range order {
		e := erase[cur]
		for _, p := range e.parents {
			if _, ok := erase[p]; ok {
				continue
			}
			if parent, ok := s.get(p); ok {
				parent.children = removeID(parent.children, cur)
			}
		}
		for _, c := range e.children {
			if _, ok := erase[c]; ok {
				continue
			}
			if child, ok := s.get(c); ok {
				child.parents = removeID(child.parents, cur)
			}
		}
		for _, ref := range append(cloneIDs(e.sources), e.targets...) {
			if _, ok := erase[ref]; ok {
				continue
			}
			if endpoint, ok := s.get(ref); ok {
				endpoint.refs = removeID(endpoint.refs, cur)
			}
		}
		e.deleted = true
	}

	s.indexMu.Lock()
	for _, cur := range order {
		delete(s.index, cur)
		s.erased[cur] = struct{}{}
		if erase[cur].remoteRoot {
			s.remoteRoots = removeID(s.remoteRoots, cur)
		}
	}
	s.indexMu.Unlock()

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return order, nil
}

// checkFresh requires the structure mutex. Ids are never handed out twice,
// so an erased id stays taken.
func (s *Store) checkFresh(id model.ID) error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	if _, ok := s.index[id]; ok {
		return model.ErrDuplicateID
	}
	if _, ok := s.erased[id]; ok {
		return model.ErrIDErased
	}
	return nil
}

// existingView snapshots a live entity for a duplicate create. Content
// fields change under the stripe lock alone, so it is taken here too.
func (s *Store) existingView(id model.ID) model.EntityView {
	e, ok := s.get(id)
	if !ok {
		return model.EntityView{}
	}
	unlock := s.rlock(id)
	defer unlock()
	return e.view()
}

func allIn(ids []model.ID, set map[model.ID]*entity) bool {
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func notFound(id model.ID) error {
	return fmt.Errorf("entity %s: %w", id, model.ErrNotFound)
}
