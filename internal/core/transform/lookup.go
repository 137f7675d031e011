package transform

import (
	"fmt"

	"github.com/agenthands/rsgwm/internal/core/model"
)

// Hop is one traversable edge of the transform graph as seen from a vertex.
type Hop struct {
	// Via is the Transform connection carrying the pose. Empty for rigid
	// frame attachments.
	Via model.ID
	To  model.ID
	// Inverse is set when the hop runs from a target back to a source.
	Inverse bool
	// Rigid hops contribute the identity.
	Rigid bool
}

// Graph is the read view the lookup needs. Implementations return hops in a
// deterministic order; the search relies on that for its tie-break.
type Graph interface {
	TransformHops(id model.ID, at model.Stamp) ([]Hop, error)
	TransformAt(via model.ID, at model.Stamp) (model.StampedTransform, error)
}

// Lookup returns the pose of `to` expressed in the frame of `from` at the
// given stamp. The path with the fewest hops wins; among equally short
// paths the first one found in hop order is used.
func Lookup(g Graph, from, to model.ID, at model.Stamp) (model.Matrix44, error) {
	path, err := findPath(g, from, to, at)
	if err != nil {
		return model.Matrix44{}, err
	}

	result := model.Identity()
	for _, hop := range path {
		if hop.Rigid {
			continue
		}
		entry, err := g.TransformAt(hop.Via, at)
		if err != nil {
			return model.Matrix44{}, err
		}
		m := entry.Matrix
		if hop.Inverse {
			m, err = m.Inverse()
			if err != nil {
				return model.Matrix44{}, fmt.Errorf("transform %s: %w", hop.Via, err)
			}
		}
		result = result.Mul(m)
	}
	return result, nil
}

type visit struct {
	prev model.ID
	hop  Hop
}

func findPath(g Graph, from, to model.ID, at model.Stamp) ([]Hop, error) {
	if _, err := g.TransformHops(to, at); err != nil {
		return nil, err
	}
	start, err := g.TransformHops(from, at)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, nil
	}

	seen := map[model.ID]visit{from: {}}
	queue := []model.ID{from}
	hops := map[model.ID][]Hop{from: start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		next, ok := hops[cur]
		if !ok {
			next, err = g.TransformHops(cur, at)
			if err != nil {
				// vanished under a concurrent delete; treat as a dead end
				continue
			}
		}
		for _, hop := range next {
			if _, done := seen[hop.To]; done {
				continue
			}
			seen[hop.To] = visit{prev: cur, hop: hop}
			if hop.To == to {
				return unwind(seen, from, to), nil
			}
			queue = append(queue, hop.To)
		}
	}
	return nil, fmt.Errorf("%s -> %s: %w", from, to, model.ErrNoPath)
}

func unwind(seen map[model.ID]visit, from, to model.ID) []Hop {
	var rev []Hop
	for cur := to; cur != from; {
		v := seen[cur]
		rev = append(rev, v.hop)
		cur = v.prev
	}
	path := make([]Hop, len(rev))
	for i, h := range rev {
		path[len(rev)-1-i] = h
	}
	return path
}
