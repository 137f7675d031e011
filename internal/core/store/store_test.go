package store

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/rsgwm/internal/core/model"
)

const (
	idA = model.ID("00000000-0000-0000-0000-00000000000a")
	idB = model.ID("00000000-0000-0000-0000-00000000000b")
	idC = model.ID("00000000-0000-0000-0000-00000000000c")
	idD = model.ID("00000000-0000-0000-0000-00000000000d")
	idG = model.ID("00000000-0000-0000-0000-0000000000aa")
	idT = model.ID("00000000-0000-0000-0000-0000000000f1")
	idU = model.ID("00000000-0000-0000-0000-0000000000f2")
)

func newStore() *Store {
	return New(Options{Stripes: 8})
}

func attrs(kv ...any) model.Attributes {
	var out model.Attributes
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, model.NewAttribute(kv[i].(string), kv[i+1]))
	}
	return out
}

func translation(s model.Stamp, x, y, z float64) model.StampedTransform {
	return model.StampedTransform{Stamp: s, Matrix: model.Translation(x, y, z)}
}

func TestCreateNodeUnderRoot(t *testing.T) {
	s := newStore()

	v, err := s.CreateNode(idA, s.Root(), attrs("name", "waypoint"))
	require.NoError(t, err)
	assert.Equal(t, idA, v.ID)
	assert.Equal(t, []model.ID{s.Root()}, v.Parents)

	children, err := s.Children(s.Root())
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idA}, children)
	assert.Equal(t, 2, s.Len())
}

func TestCreateRejectsMissingParent(t *testing.T) {
	s := newStore()

	_, err := s.CreateNode(idA, idB, nil)
	assert.ErrorIs(t, err, model.ErrParentNotFound)
	assert.False(t, s.Exists(idA))
	assert.Equal(t, 1, s.Len())
}

func TestCreateRejectsNodeAsParent(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	_, err = s.CreateNode(idB, idA, nil)
	assert.ErrorIs(t, err, model.ErrParentNotFound)
	assert.False(t, s.Exists(idB))
}

func TestCreateConnectionRejectsDanglingEndpoint(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	_, err = s.CreateConnection(NewEntity{
		ID:        idC,
		ParentID:  s.Root(),
		SourceIDs: []model.ID{idA},
		TargetIDs: []model.ID{idB},
	})
	assert.ErrorIs(t, err, model.ErrDanglingReference)
	assert.False(t, s.Exists(idC))

	children, err := s.Children(s.Root())
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idA}, children)
}

func TestCreateConnectionMaySelfReference(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	v, err := s.CreateConnection(NewEntity{
		ID:              idT,
		SemanticContext: model.SemanticTransform,
		ParentID:        s.Root(),
		SourceIDs:       []model.ID{idA},
		TargetIDs:       []model.ID{idT},
		History:         []model.StampedTransform{translation(0, 1, 0, 0)},
	})
	require.NoError(t, err)
	assert.True(t, v.IsTransform())
	assert.Equal(t, []model.ID{idT}, v.TargetIDs)
}

func TestCreateTransformNeedsHistory(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	_, err = s.CreateConnection(NewEntity{
		ID:              idT,
		SemanticContext: model.SemanticTransform,
		ParentID:        s.Root(),
		SourceIDs:       []model.ID{idA},
		TargetIDs:       []model.ID{idA},
	})
	assert.ErrorIs(t, err, model.ErrMalformedRequest)
}

func TestDuplicateCreateIsNoop(t *testing.T) {
	s := newStore()
	first, err := s.CreateNode(idA, s.Root(), attrs("k", "v"))
	require.NoError(t, err)

	second, err := s.CreateNode(idA, s.Root(), attrs("k", "v"))
	assert.ErrorIs(t, err, model.ErrDuplicateID)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, s.Len())

	children, err := s.Children(s.Root())
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idA}, children)
}

func TestDuplicateCreateDuringAttributeWrites(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), attrs("k", 0))
	require.NoError(t, err)
	_, err = s.CreateRemoteRoot(idG, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _, err := s.SetAttributes(idA, attrs("k", i), model.ModeReplace)
			assert.NoError(t, err)
			_, _, err = s.SetAttributes(idG, attrs("k", i), model.ModeReplace)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			v, err := s.CreateNode(idA, s.Root(), nil)
			assert.ErrorIs(t, err, model.ErrDuplicateID)
			assert.Equal(t, idA, v.ID)
			_, err = s.CreateRemoteRoot(idG, nil)
			assert.ErrorIs(t, err, model.ErrDuplicateID)
		}
	}()
	wg.Wait()
}

func TestErasedIDIsNotReused(t *testing.T) {
	s := newStore()
	_, err := s.CreateGroup(idG, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idA, idG, attrs("k", "v"))
	require.NoError(t, err)

	erased, err := s.DeleteNode(idG)
	require.NoError(t, err)
	require.Equal(t, []model.ID{idA, idG}, erased)

	_, err = s.CreateNode(idA, s.Root(), nil)
	assert.ErrorIs(t, err, model.ErrIDErased)
	_, err = s.CreateRemoteRoot(idG, nil)
	assert.ErrorIs(t, err, model.ErrIDErased)
	assert.False(t, s.Exists(idA))
	assert.False(t, s.Exists(idG))
	assert.Equal(t, 1, s.Len())
}

func TestAttributeRoundTrip(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	want := attrs("name", "robot", "tag", 1, "tag", 2, "pose", map[string]any{"x": 1.5})
	_, after, err := s.SetAttributes(idA, want, model.ModeReplace)
	require.NoError(t, err)
	assert.True(t, want.Equal(after))

	got, err := s.Attributes(idA)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestAttributeUpdateMerges(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	_, _, err = s.SetAttributes(idA, attrs("k1", "v1"), model.ModeReplace)
	require.NoError(t, err)
	before, after, err := s.SetAttributes(idA, attrs("k2", "v2"), model.ModeUpdate)
	require.NoError(t, err)

	assert.True(t, attrs("k1", "v1").Equal(before))
	assert.True(t, attrs("k1", "v1", "k2", "v2").Equal(after))

	_, after, err = s.SetAttributes(idA, attrs("k1", "v3"), model.ModeUpdate)
	require.NoError(t, err)
	assert.True(t, attrs("k1", "v3", "k2", "v2").Equal(after))
}

func TestSetAttributesUnknownEntity(t *testing.T) {
	s := newStore()
	_, _, err := s.SetAttributes(idA, attrs("k", "v"), model.ModeReplace)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFindByAttributes(t *testing.T) {
	s := newStore()
	_, err := s.CreateGroup(idG, s.Root(), attrs("name", "area"))
	require.NoError(t, err)
	_, err = s.CreateNode(idA, idG, attrs("type", "waypoint", "level", 1))
	require.NoError(t, err)
	_, err = s.CreateNode(idB, s.Root(), attrs("type", "waypoint", "level", 2))
	require.NoError(t, err)
	_, err = s.CreateNode(idC, s.Root(), attrs("type", "agent"))
	require.NoError(t, err)

	wildcard := model.Predicate{Key: "type", Value: json.RawMessage(`"*"`)}

	t.Run("wildcard matches key presence", func(t *testing.T) {
		ids, err := s.FindByAttributes([]model.Predicate{wildcard}, "")
		require.NoError(t, err)
		assert.Equal(t, []model.ID{idA, idB, idC}, ids)
	})

	t.Run("predicates are ANDed", func(t *testing.T) {
		ids, err := s.FindByAttributes([]model.Predicate{
			{Key: "type", Value: json.RawMessage(`"waypoint"`)},
			{Key: "level", Value: json.RawMessage(`2.0`)},
		}, "")
		require.NoError(t, err)
		assert.Equal(t, []model.ID{idB}, ids)
	})

	t.Run("subgraph restricts scope", func(t *testing.T) {
		ids, err := s.FindByAttributes([]model.Predicate{wildcard}, idG)
		require.NoError(t, err)
		assert.Equal(t, []model.ID{idA}, ids)
	})

	t.Run("unknown subgraph", func(t *testing.T) {
		_, err := s.FindByAttributes(nil, idD)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestAddAndDeleteParentEdge(t *testing.T) {
	s := newStore()
	_, err := s.CreateGroup(idG, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	require.NoError(t, s.AddParent(idA, idG))
	assert.ErrorIs(t, s.AddParent(idA, idG), model.ErrDuplicateID)

	parents, err := s.Parents(idA)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{s.Root(), idG}, parents)

	erased, err := s.DeleteParentEdge(idA, s.Root())
	require.NoError(t, err)
	assert.Empty(t, erased)
	assert.True(t, s.Exists(idA))

	parents, err = s.Parents(idA)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idG}, parents)

	erased, err = s.DeleteParentEdge(idA, idG)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idA}, erased)
	assert.False(t, s.Exists(idA))

	children, err := s.Children(idG)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestDeleteParentEdgeUnknownEdge(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)

	_, err = s.DeleteParentEdge(idA, idG)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteNodeRejectsReferencedEndpoint(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idB, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateConnection(NewEntity{
		ID: idC, ParentID: s.Root(),
		SourceIDs: []model.ID{idA}, TargetIDs: []model.ID{idB},
	})
	require.NoError(t, err)

	_, err = s.DeleteNode(idA)
	assert.ErrorIs(t, err, model.ErrStillReferenced)
	assert.True(t, s.Exists(idA))

	erased, err := s.DeleteNode(idC)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idC}, erased)

	erased, err = s.DeleteNode(idA)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idA}, erased)
}

func TestDeleteGroupCascades(t *testing.T) {
	s := newStore()
	_, err := s.CreateGroup(idG, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idA, idG, nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idB, idG, nil)
	require.NoError(t, err)
	require.NoError(t, s.AddParent(idB, s.Root()))

	erased, err := s.DeleteNode(idG)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idA, idG}, erased)
	assert.False(t, s.Exists(idA))
	assert.True(t, s.Exists(idB))

	parents, err := s.Parents(idB)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{s.Root()}, parents)
}

func TestDeleteGroupCascadeTakesInternalConnection(t *testing.T) {
	s := newStore()
	_, err := s.CreateGroup(idG, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idA, idG, nil)
	require.NoError(t, err)
	_, err = s.CreateConnection(NewEntity{
		ID: idC, ParentID: idG,
		SourceIDs: []model.ID{idA}, TargetIDs: []model.ID{idA},
	})
	require.NoError(t, err)

	erased, err := s.DeleteNode(idG)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.ID{idG, idA, idC}, erased)
	assert.Equal(t, 1, s.Len())
}

func TestDeleteGroupRejectedWhenDescendantReferenced(t *testing.T) {
	s := newStore()
	_, err := s.CreateGroup(idG, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idA, idG, nil)
	require.NoError(t, err)
	_, err = s.CreateConnection(NewEntity{
		ID: idC, ParentID: s.Root(),
		SourceIDs: []model.ID{idA}, TargetIDs: []model.ID{idA},
	})
	require.NoError(t, err)

	_, err = s.DeleteNode(idG)
	assert.ErrorIs(t, err, model.ErrStillReferenced)
	assert.True(t, s.Exists(idG))
	assert.True(t, s.Exists(idA))
}

func TestDeleteRoot(t *testing.T) {
	s := newStore()
	_, err := s.DeleteNode(s.Root())
	assert.ErrorIs(t, err, model.ErrRootImmutable)
}

func TestDeleteUnknown(t *testing.T) {
	s := newStore()
	_, err := s.DeleteNode(idA)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRemoteRoots(t *testing.T) {
	t.Run("detached", func(t *testing.T) {
		s := newStore()
		v, err := s.CreateRemoteRoot(idG, attrs("name", "remote"))
		require.NoError(t, err)
		assert.Empty(t, v.Parents)
		assert.Equal(t, []model.ID{idG}, s.RemoteRoots())

		_, err = s.DeleteNode(idG)
		require.NoError(t, err)
		assert.Empty(t, s.RemoteRoots())
	})

	t.Run("auto mounted", func(t *testing.T) {
		s := New(Options{AutoMountRemoteRoots: true})
		v, err := s.CreateRemoteRoot(idG, nil)
		require.NoError(t, err)
		assert.Equal(t, []model.ID{s.Root()}, v.Parents)

		children, err := s.Children(s.Root())
		require.NoError(t, err)
		assert.Equal(t, []model.ID{idG}, children)
	})
}

func TestStartEnd(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateConnection(NewEntity{
		ID: idC, ParentID: s.Root(),
		SourceIDs: []model.ID{idA}, TargetIDs: []model.ID{idA},
	})
	require.NoError(t, err)

	require.NoError(t, s.SetStart(idC, 10))
	require.NoError(t, s.SetEnd(idC, 20))
	v, err := s.View(idC)
	require.NoError(t, err)
	assert.Equal(t, model.Interval{Start: 10, End: 20}, v.Interval)

	assert.ErrorIs(t, s.SetStart(idA, 10), model.ErrNotAConnection)
}

func TestConnectionEndpoints(t *testing.T) {
	s := newStore()
	_, err := s.CreateNode(idA, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateNode(idB, s.Root(), nil)
	require.NoError(t, err)
	_, err = s.CreateConnection(NewEntity{
		ID: idC, ParentID: s.Root(),
		SourceIDs: []model.ID{idA}, TargetIDs: []model.ID{idB, idA},
	})
	require.NoError(t, err)

	sources, targets, err := s.ConnectionEndpoints(idC)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{idA}, sources)
	assert.Equal(t, []model.ID{idB, idA}, targets)

	_, _, err = s.ConnectionEndpoints(idA)
	assert.ErrorIs(t, err, model.ErrNotAConnection)
}

func TestConcurrentAttributeWrites(t *testing.T) {
	s := newStore()
	ids := []model.ID{idA, idB, idC, idD}
	for _, id := range ids {
		_, err := s.CreateNode(id, s.Root(), nil)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(id model.ID, i int) {
				defer wg.Done()
				_, _, err := s.SetAttributes(id, attrs("n", i), model.ModeUpdate)
				assert.NoError(t, err)
				_, err = s.FindByAttributes([]model.Predicate{{Key: "n", Value: json.RawMessage(`"*"`)}}, "")
				assert.NoError(t, err)
			}(id, i)
		}
	}
	wg.Wait()

	found, err := s.FindByAttributes([]model.Predicate{{Key: "n", Value: json.RawMessage(`"*"`)}}, "")
	require.NoError(t, err)
	assert.Len(t, found, len(ids))
}
