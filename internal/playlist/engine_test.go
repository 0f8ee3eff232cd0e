package playlist

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tr(id string) Track {
	return Track{ID: id, Title: "Title " + id, Artist: "Artist " + id}
}

func ids(t *testing.T, l *LinkedPlaylist) []string {
	t.Helper()
	tracks, err := l.OrderedTracks()
	require.NoError(t, err)
	out := make([]string, 0, len(tracks))
	for _, ot := range tracks {
		out = append(out, ot.Track.ID)
	}
	return out
}

func insert(t *testing.T, l *LinkedPlaylist, after *OrderedTrack, tracks ...Track) []OrderedTrack {
	t.Helper()
	changes, inserted, err := l.InsertPatch(tracks, after)
	require.NoError(t, err)
	l.AddTracks(tracks...)
	l.Apply(Patch{Changes: changes})
	require.NoError(t, l.Validate())
	return inserted
}

func TestInsertPatch_EmptyList(t *testing.T) {
	l := New()
	changes, inserted, err := l.InsertPatch([]Track{tr("A"), tr("B"), tr("C")}, nil)
	require.NoError(t, err)
	require.Len(t, inserted, 3)
	assert.Len(t, changes, 3)

	first := changes[inserted[0].OrderHash]
	require.NotNil(t, first)
	assert.True(t, first.Previous.Set)
	assert.Nil(t, first.Previous.Value)

	last := changes[inserted[2].OrderHash]
	require.NotNil(t, last)
	assert.True(t, last.Next.Set)
	assert.Nil(t, last.Next.Value)

	l.Apply(Patch{Changes: changes})
	l.AddTracks(tr("A"), tr("B"), tr("C"))
	assert.Equal(t, []string{"A", "B", "C"}, ids(t, &l))
	assert.Equal(t, 3, l.Count())
}

func TestInsertPatch_NoTracks(t *testing.T) {
	l := New()
	changes, inserted, err := l.InsertPatch(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, inserted)
}

func TestInsertPatch_AtHeadPrependsInOrder(t *testing.T) {
	l := New()
	insert(t, &l, nil, tr("X"))
	insert(t, &l, nil, tr("A"), tr("B"))
	assert.Equal(t, []string{"A", "B", "X"}, ids(t, &l))
}

func TestInsertPatch_AfterAnchor(t *testing.T) {
	l := New()
	abc := insert(t, &l, nil, tr("A"), tr("B"), tr("C"))

	changes, _, err := l.InsertPatch([]Track{tr("D"), tr("E")}, &abc[0])
	require.NoError(t, err)

	// two new nodes plus field-only updates for both neighbours
	assert.Len(t, changes, 4)
	left := changes[abc[0].OrderHash]
	require.NotNil(t, left)
	assert.True(t, left.Next.Set)
	assert.False(t, left.Previous.Set)
	assert.False(t, left.ID.Set)
	right := changes[abc[1].OrderHash]
	require.NotNil(t, right)
	assert.True(t, right.Previous.Set)
	assert.False(t, right.Next.Set)

	l.Apply(Patch{Changes: changes})
	l.AddTracks(tr("D"), tr("E"))
	assert.Equal(t, []string{"A", "D", "E", "B", "C"}, ids(t, &l))
	require.NoError(t, l.Validate())
}

func TestInsertPatch_AfterTail(t *testing.T) {
	l := New()
	abc := insert(t, &l, nil, tr("A"), tr("B"))
	insert(t, &l, &abc[1], tr("C"))
	assert.Equal(t, []string{"A", "B", "C"}, ids(t, &l))
}

func TestInsertPatch_UnknownAnchor(t *testing.T) {
	l := New()
	insert(t, &l, nil, tr("A"))
	ghost := NewOrderedTrack(tr("Z"), "ghost")
	_, _, err := l.InsertPatch([]Track{tr("B")}, &ghost)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDeletePatch_Middle(t *testing.T) {
	l := New()
	abc := insert(t, &l, nil, tr("A"), tr("B"), tr("C"))

	changes, err := l.DeletePatch(abc[1])
	require.NoError(t, err)
	assert.Len(t, changes, 3)
	v, ok := changes[abc[1].OrderHash]
	assert.True(t, ok)
	assert.Nil(t, v)

	l.Apply(Patch{Changes: changes})
	assert.Equal(t, []string{"A", "C"}, ids(t, &l))

	a := l.View[abc[0].OrderHash]
	c := l.View[abc[2].OrderHash]
	require.NotNil(t, a.Next)
	require.NotNil(t, c.Previous)
	assert.Equal(t, abc[2].OrderHash, *a.Next)
	assert.Equal(t, abc[0].OrderHash, *c.Previous)
	require.NoError(t, l.Validate())
}

func TestDeletePatch_Ends(t *testing.T) {
	l := New()
	abc := insert(t, &l, nil, tr("A"), tr("B"), tr("C"))

	changes, err := l.DeletePatch(abc[0])
	require.NoError(t, err)
	l.Apply(Patch{Changes: changes})
	assert.Equal(t, []string{"B", "C"}, ids(t, &l))

	changes, err = l.DeletePatch(abc[2])
	require.NoError(t, err)
	l.Apply(Patch{Changes: changes})
	assert.Equal(t, []string{"B"}, ids(t, &l))
	require.NoError(t, l.Validate())
}

func TestDeletePatch_SoleEntry(t *testing.T) {
	l := New()
	a := insert(t, &l, nil, tr("A"))
	changes, err := l.DeletePatch(a[0])
	require.NoError(t, err)
	assert.Equal(t, Changes{a[0].OrderHash: nil}, changes)
}

func TestDeletePatch_UnknownNode(t *testing.T) {
	l := New()
	_, err := l.DeletePatch(NewOrderedTrack(tr("A"), "nope1"))
	var ce *CorruptionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "delete", ce.Op)
	assert.Equal(t, "nope1", ce.Hash)
}

func TestMovePatch(t *testing.T) {
	l := New()
	abcd := insert(t, &l, nil, tr("A"), tr("B"), tr("C"), tr("D"))

	changes, moved, err := l.MovePatch(abcd[3], nil)
	require.NoError(t, err)
	assert.NotEqual(t, abcd[3].OrderHash, moved.OrderHash)
	l.Apply(Patch{Changes: changes})
	assert.Equal(t, []string{"D", "A", "B", "C"}, ids(t, &l))
	require.NoError(t, l.Validate())

	changes, _, err = l.MovePatch(moved, &abcd[1])
	require.NoError(t, err)
	l.Apply(Patch{Changes: changes})
	assert.Equal(t, []string{"A", "B", "D", "C"}, ids(t, &l))
	require.NoError(t, l.Validate())
}

func TestMovePatch_AfterItself(t *testing.T) {
	l := New()
	ab := insert(t, &l, nil, tr("A"), tr("B"))
	changes, moved, err := l.MovePatch(ab[0], &ab[0])
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.True(t, moved.Equal(ab[0]))
}

func TestApply_IdempotentReapplication(t *testing.T) {
	l := New()
	abc := insert(t, &l, nil, tr("A"), tr("B"), tr("C"))

	ins, _, err := l.InsertPatch([]Track{tr("D")}, &abc[1])
	require.NoError(t, err)
	l.AddTracks(tr("D"))
	l.Apply(Patch{Changes: ins})
	before := ids(t, &l)
	l.Apply(Patch{Changes: ins})
	assert.Equal(t, before, ids(t, &l))

	del, err := l.DeletePatch(abc[0])
	require.NoError(t, err)
	l.Apply(Patch{Changes: del})
	before = ids(t, &l)
	l.Apply(Patch{Changes: del})
	assert.Equal(t, before, ids(t, &l))
	require.NoError(t, l.Validate())
}

func TestApply_FieldLevelMerge(t *testing.T) {
	l := New()
	l.Apply(Patch{Changes: Changes{
		"h1": FullNode(Node{ID: "A", Hash: "h1", Next: strPtr("h2")}),
		"h2": FullNode(Node{ID: "B", Hash: "h2", Previous: strPtr("h1")}),
	}})

	// only next is touched, previous and id survive
	l.Apply(Patch{Changes: Changes{"h2": {Next: Value("h3")}}})
	n := l.View["h2"]
	assert.Equal(t, "B", n.ID)
	require.NotNil(t, n.Previous)
	assert.Equal(t, "h1", *n.Previous)
	require.NotNil(t, n.Next)
	assert.Equal(t, "h3", *n.Next)

	// explicit null clears
	l.Apply(Patch{Changes: Changes{"h2": {Next: Null()}}})
	assert.Nil(t, l.View["h2"].Next)
	assert.NotNil(t, l.View["h2"].Previous)
}

func TestApply_Flush(t *testing.T) {
	l := New()
	insert(t, &l, nil, tr("A"), tr("B"))
	patch, inserted := FlushPatch([]Track{tr("C")})
	require.Len(t, inserted, 1)
	l.Apply(patch)
	l.AddTracks(tr("C"))
	assert.Equal(t, []string{"C"}, ids(t, &l))

	empty, _ := FlushPatch(nil)
	l.Apply(empty)
	assert.Equal(t, 0, l.Count())
	tracks, err := l.OrderedTracks()
	assert.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	l := New()
	insert(t, &l, nil, tr("A"), tr("B"), tr("C"))

	other := New()
	insert(t, &other, nil, tr("Z"))
	other.AddTracks(tr("A"), tr("B"), tr("C"))
	other.Apply(l.Snapshot())
	assert.Equal(t, ids(t, &l), ids(t, &other))
}

func TestOrderedTracks_PendingPayload(t *testing.T) {
	l := New()
	changes, _, err := l.InsertPatch([]Track{{ID: "A"}, {ID: "B"}}, nil)
	require.NoError(t, err)
	l.Apply(Patch{Changes: changes})
	l.AddTracks(tr("A"))

	tracks, err := l.OrderedTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.False(t, tracks[0].Pending)
	assert.True(t, tracks[1].Pending)
	assert.Equal(t, "B", tracks[1].Track.ID)
	assert.Equal(t, []string{"B"}, l.MissingIDs())
	assert.Equal(t, []string{"A", "B"}, l.ReferencedIDs())
}

func TestOrderedTracks_Corruption(t *testing.T) {
	tests := []struct {
		name string
		view map[string]Node
	}{
		{
			name: "cycle without head",
			view: map[string]Node{
				"a": {ID: "A", Hash: "a", Next: strPtr("b"), Previous: strPtr("b")},
				"b": {ID: "B", Hash: "b", Next: strPtr("a"), Previous: strPtr("a")},
			},
		},
		{
			name: "two heads",
			view: map[string]Node{
				"a": {ID: "A", Hash: "a"},
				"b": {ID: "B", Hash: "b"},
			},
		},
		{
			name: "dangling next",
			view: map[string]Node{
				"a": {ID: "A", Hash: "a", Next: strPtr("zz")},
			},
		},
		{
			name: "cycle behind head",
			view: map[string]Node{
				"a": {ID: "A", Hash: "a", Next: strPtr("b")},
				"b": {ID: "B", Hash: "b", Previous: strPtr("a"), Next: strPtr("c")},
				"c": {ID: "C", Hash: "c", Previous: strPtr("b"), Next: strPtr("b")},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			l.View = tt.view
			_, err := l.OrderedTracks()
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.ErrorIs(t, l.Validate(), ErrCorrupt)
		})
	}
}

func TestValidate_AsymmetricLinks(t *testing.T) {
	l := New()
	l.View = map[string]Node{
		"a": {ID: "A", Hash: "a", Next: strPtr("b")},
		"b": {ID: "B", Hash: "b", Previous: strPtr("c")},
		"c": {ID: "C", Hash: "c", Previous: strPtr("a")},
	}
	assert.ErrorIs(t, l.Validate(), ErrCorrupt)
}

func TestNextPrevious(t *testing.T) {
	l := New()
	abc := insert(t, &l, nil, tr("A"), tr("B"), tr("C"))

	next, ok := l.Next(abc[0])
	require.True(t, ok)
	assert.True(t, next.Equal(abc[1]))

	_, ok = l.Next(abc[2])
	assert.False(t, ok)

	prev, ok := l.Previous(abc[2])
	require.True(t, ok)
	assert.Equal(t, "B", prev.Track.ID)

	_, ok = l.Previous(abc[0])
	assert.False(t, ok)

	head, ok := l.Head()
	require.True(t, ok)
	assert.True(t, head.Equal(abc[0]))

	idx, err := l.Index(abc[2].OrderHash)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

// Random edit sequences must keep the structural invariants.
func TestRandomEdits_KeepInvariants(t *testing.T) {
	l := New()
	r := rand.New(rand.NewPCG(1, 2))
	for step := 0; step < 500; step++ {
		tracks, err := l.OrderedTracks()
		require.NoError(t, err)

		switch op := r.IntN(3); {
		case op == 0 || len(tracks) == 0:
			var after *OrderedTrack
			if len(tracks) > 0 && r.IntN(4) > 0 {
				after = &tracks[r.IntN(len(tracks))]
			}
			n := 1 + r.IntN(3)
			batch := make([]Track, n)
			for i := range batch {
				batch[i] = tr(NewHash())
			}
			insert(t, &l, after, batch...)
		case op == 1:
			victim := tracks[r.IntN(len(tracks))]
			changes, err := l.DeletePatch(victim)
			require.NoError(t, err)
			l.Apply(Patch{Changes: changes})
		default:
			victim := tracks[r.IntN(len(tracks))]
			var after *OrderedTrack
			if r.IntN(3) > 0 {
				after = &tracks[r.IntN(len(tracks))]
			}
			changes, _, err := l.MovePatch(victim, after)
			require.NoError(t, err)
			l.Apply(Patch{Changes: changes})
			after2, err := l.OrderedTracks()
			require.NoError(t, err)
			assert.Len(t, after2, len(tracks))
		}
		require.NoError(t, l.Validate(), "step %d", step)
	}
}

func TestNodePatchJSON_TriState(t *testing.T) {
	in := Patch{Changes: Changes{
		"h1": {Next: Value("h2")},
		"h2": {Previous: Null(), ID: Value("B")},
		"h3": nil,
	}}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shouldFlush":false,"patch":{"h1":{"next":"h2"},"h2":{"id":"B","previous":null},"h3":null}}`, string(data))

	var out Patch
	require.NoError(t, json.Unmarshal(data, &out))
	require.Contains(t, out.Changes, "h3")
	assert.Nil(t, out.Changes["h3"])
	assert.True(t, out.Changes["h1"].Next.Set)
	assert.False(t, out.Changes["h1"].Previous.Set)
	assert.True(t, out.Changes["h2"].Previous.Set)
	assert.Nil(t, out.Changes["h2"].Previous.Value)
}

func TestNodePatchJSON_BadField(t *testing.T) {
	var np NodePatch
	err := json.Unmarshal([]byte(`{"next": 12}`), &np)
	assert.Error(t, err)
}

func TestChangesMerge(t *testing.T) {
	c := Changes{
		"a": {Next: Value("b")},
		"b": {Previous: Value("a")},
	}
	c.Merge(Changes{
		"a": {Previous: Null()},
		"b": nil,
		"c": {ID: Value("C")},
	})
	assert.True(t, c["a"].Next.Set)
	assert.True(t, c["a"].Previous.Set)
	assert.Nil(t, c["b"])
	assert.Contains(t, c, "b")
	assert.Equal(t, "C", *c["c"].ID.Value)
}

func TestNewOrderedTrack(t *testing.T) {
	a := NewOrderedTrack(tr("A"), "")
	assert.Len(t, a.OrderHash, HashLength)
	b := NewOrderedTrack(tr("B"), a.OrderHash)
	assert.True(t, a.Equal(b))

	n := a.Node(nil, strPtr("x"))
	assert.Equal(t, "A", n.ID)
	assert.Nil(t, n.Previous)
	assert.Equal(t, "x", *n.Next)
}

func TestClone_Independent(t *testing.T) {
	l := New()
	abc := insert(t, &l, nil, tr("A"), tr("B"))
	c := l.Clone()
	changes, err := c.DeletePatch(abc[0])
	require.NoError(t, err)
	c.Apply(Patch{Changes: changes})
	assert.Equal(t, 2, l.Count())
	assert.Equal(t, 1, c.Count())
}
