package store

import (
	"fmt"

	"github.com/agenthands/rsgwm/internal/core/model"
)

// SetAttributes applies attrs in the given mode and returns the attribute
// list before and after the change.
func (s *Store) SetAttributes(id model.ID, attrs model.Attributes, mode model.UpdateMode) (before, after model.Attributes, err error) {
	err = s.write(id, func(e *entity) error {
		before = e.attrs.Clone()
		e.attrs = mode.Apply(e.attrs, attrs)
		after = e.attrs.Clone()
		return nil
	})
	return before, after, err
}

func (s *Store) Attributes(id model.ID) (model.Attributes, error) {
	var attrs model.Attributes
	err := s.read(id, func(e *entity) { attrs = e.attrs.Clone() })
	return attrs, err
}

// InsertTransform adds history entries to a Transform connection. Entries
// may be older than what is already stored.
func (s *Store) InsertTransform(id model.ID, entries ...model.StampedTransform) error {
	if len(entries) == 0 {
		return fmt.Errorf("transform %s: empty history: %w", id, model.ErrMalformedRequest)
	}
	return s.write(id, func(e *entity) error {
		if !e.isTransform() {
			return fmt.Errorf("entity %s: %w", id, model.ErrNotATransform)
		}
		for _, entry := range entries {
			e.history.Insert(entry)
		}
		return nil
	})
}

func (s *Store) Latest(id model.ID) (model.StampedTransform, error) {
	var (
		entry model.StampedTransform
		err   error
	)
	readErr := s.read(id, func(e *entity) {
		if !e.isTransform() {
			err = fmt.Errorf("entity %s: %w", id, model.ErrNotATransform)
			return
		}
		entry, _ = e.history.Latest()
	})
	if readErr != nil {
		return entry, readErr
	}
	return entry, err
}

func (s *Store) History(id model.ID) ([]model.StampedTransform, error) {
	var (
		entries []model.StampedTransform
		err     error
	)
	readErr := s.read(id, func(e *entity) {
		if !e.isTransform() {
			err = fmt.Errorf("entity %s: %w", id, model.ErrNotATransform)
			return
		}
		entries = e.history.Entries()
	})
	if readErr != nil {
		return nil, readErr
	}
	return entries, err
}

func (s *Store) SetStart(id model.ID, start model.Stamp) error {
	return s.write(id, func(e *entity) error {
		if e.kind != model.KindConnection {
			return fmt.Errorf("entity %s: %w", id, model.ErrNotAConnection)
		}
		e.interval.Start = start
		return nil
	})
}

func (s *Store) SetEnd(id model.ID, end model.Stamp) error {
	return s.write(id, func(e *entity) error {
		if e.kind != model.KindConnection {
			return fmt.Errorf("entity %s: %w", id, model.ErrNotAConnection)
		}
		e.interval.End = end
		return nil
	})
}

func (s *Store) Children(id model.ID) ([]model.ID, error) {
	var (
		children []model.ID
		err      error
	)
	readErr := s.read(id, func(e *entity) {
		if !e.canParent() {
			err = fmt.Errorf("entity %s: %w", id, model.ErrNotAGroup)
			return
		}
		children = cloneIDs(e.children)
	})
	if readErr != nil {
		return nil, readErr
	}
	return children, err
}

func (s *Store) Parents(id model.ID) ([]model.ID, error) {
	var parents []model.ID
	err := s.read(id, func(e *entity) { parents = cloneIDs(e.parents) })
	return parents, err
}

func (s *Store) ConnectionEndpoints(id model.ID) (sources, targets []model.ID, err error) {
	readErr := s.read(id, func(e *entity) {
		if e.kind != model.KindConnection {
			err = fmt.Errorf("entity %s: %w", id, model.ErrNotAConnection)
			return
		}
		sources = cloneIDs(e.sources)
		targets = cloneIDs(e.targets)
	})
	if readErr != nil {
		return nil, nil, readErr
	}
	return sources, targets, err
}
