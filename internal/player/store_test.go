package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

func TestStore_DispatchReplacesSnapshot(t *testing.T) {
	s := NewStore(NewState())
	before := s.State()

	next, err := s.Dispatch(SetBlocked("me", true))
	require.NoError(t, err)
	assert.True(t, next.IsBlocked)
	assert.Equal(t, uint64(1), next.Rev)

	// the old snapshot is untouched
	assert.False(t, before.IsBlocked)
	assert.Same(t, next, s.State())
}

func TestStore_ReduceErrorDoesNotCommit(t *testing.T) {
	s := NewStore(NewState())
	boom := errors.New("boom")

	prev, err := s.Dispatch(Action{Name: "fail", Reduce: func(st *State) error {
		st.IsBlocked = true
		return boom
	}})
	assert.ErrorIs(t, err, boom)
	assert.False(t, prev.IsBlocked)
	assert.False(t, s.State().IsBlocked)
	assert.Equal(t, uint64(0), s.State().Rev)
}

func TestStore_SubscribersSeeOrderedChanges(t *testing.T) {
	s := NewStore(NewState())
	changes, cancel := s.Subscribe(16)
	defer cancel()

	_, err := s.Dispatch(SetBlocked("a", true))
	require.NoError(t, err)
	_, err = s.Dispatch(SetBlocked("b", false))
	require.NoError(t, err)

	first := <-changes
	second := <-changes
	assert.Equal(t, "a", first.Signature)
	assert.Equal(t, "set_blocked", first.Action)
	assert.False(t, first.Prev.IsBlocked)
	assert.True(t, first.Next.IsBlocked)
	assert.Equal(t, "b", second.Signature)
	assert.Same(t, first.Next, second.Prev)
}

func TestStore_CancelUnblocksWriter(t *testing.T) {
	s := NewStore(NewState())
	_, cancel := s.Subscribe(0)

	done := make(chan struct{})
	go func() {
		_, _ = s.Dispatch(SetBlocked("a", true))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch stayed blocked after cancel")
	}
	cancel()
}

func TestStore_CancelClosesChannel(t *testing.T) {
	s := NewStore(NewState())
	changes, cancel := s.Subscribe(1)
	cancel()
	_, ok := <-changes
	assert.False(t, ok)

	_, err := s.Dispatch(SetBlocked("a", true))
	assert.NoError(t, err)
}

func TestActions(t *testing.T) {
	s := NewStore(NewState())
	p := New(s, NewReconciler(context.Background(), s, &MockFetcher{}, nopLogger()), "me")

	ordered, err := p.Replace([]playlist.Track{track("A"), track("B")})
	require.NoError(t, err)

	t.Run("set current item unknown hash", func(t *testing.T) {
		ghost := "ghost"
		_, err := s.Dispatch(SetCurrentItem("peer", &ghost))
		assert.ErrorIs(t, err, ErrUnknownPosition)
	})

	t.Run("set current keeps playing flag", func(t *testing.T) {
		require.NoError(t, p.Play(ordered[0].OrderHash))
		require.NoError(t, p.SetTrackState(12.5, true))
		hash := ordered[1].OrderHash
		next, err := s.Dispatch(SetCurrentItem("peer", &hash))
		require.NoError(t, err)
		assert.Equal(t, hash, next.CurrentItem.OrderHash)
		assert.True(t, next.CurrentItem.State.IsPlaying)
		assert.Zero(t, next.CurrentItem.State.Progress)
	})

	t.Run("clear current item", func(t *testing.T) {
		next, err := s.Dispatch(SetCurrentItem("peer", nil))
		require.NoError(t, err)
		assert.Nil(t, next.CurrentItem)
	})

	t.Run("track state without current item is a no-op", func(t *testing.T) {
		next, err := s.Dispatch(SetTrackState("peer", TrackState{Progress: 3}))
		require.NoError(t, err)
		assert.Nil(t, next.CurrentItem)
	})

	t.Run("preview times", func(t *testing.T) {
		next, err := s.Dispatch(SetPreviewTimes("server", map[string]uint64{"A": 100}))
		require.NoError(t, err)
		assert.Equal(t, uint64(100), next.Tracks.PreviewTime["A"])
		require.NoError(t, p.AddPreviewTime("A", 50))
		assert.Equal(t, uint64(150), s.State().Tracks.PreviewTime["A"])
	})
}
