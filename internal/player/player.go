package player

import (
	"math/rand/v2"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

// Player is the local edit surface of a session. Every action it dispatches
// is signed with the session signature, which makes it an own change.
type Player struct {
	store     *Store
	rec       *Reconciler
	signature string
}

func New(store *Store, rec *Reconciler, signature string) *Player {
	return &Player{store: store, rec: rec, signature: signature}
}

func (p *Player) Signature() string { return p.signature }

func (p *Player) State() *State { return p.store.State() }

// RetryHydration fetches again every payload the view still misses, after
// a failed fetch or for tracks the catalog did not know yet.
func (p *Player) RetryHydration() { p.rec.Rehydrate() }

// Insert places tracks right after after, or at the head when after is nil.
func (p *Player) Insert(tracks []playlist.Track, after *playlist.OrderedTrack) ([]playlist.OrderedTrack, error) {
	var inserted []playlist.OrderedTrack
	_, err := p.rec.ApplyFunc(func(s *State) (playlist.Patch, []playlist.Track, error) {
		l := &s.Tracks
		changes, out, err := l.InsertPatch(tracks, after)
		if err != nil {
			return playlist.Patch{}, nil, err
		}
		inserted = out
		return playlist.Patch{Changes: changes}, tracks, nil
	}, p.signature)
	return inserted, err
}

// Append places tracks after the current tail.
func (p *Player) Append(tracks []playlist.Track) ([]playlist.OrderedTrack, error) {
	var inserted []playlist.OrderedTrack
	_, err := p.rec.ApplyFunc(func(s *State) (playlist.Patch, []playlist.Track, error) {
		l := &s.Tracks
		ordered, err := l.OrderedTracks()
		if err != nil {
			return playlist.Patch{}, nil, err
		}
		var after *playlist.OrderedTrack
		if len(ordered) > 0 {
			after = &ordered[len(ordered)-1]
		}
		changes, out, err := l.InsertPatch(tracks, after)
		if err != nil {
			return playlist.Patch{}, nil, err
		}
		inserted = out
		return playlist.Patch{Changes: changes}, tracks, nil
	}, p.signature)
	return inserted, err
}

// Delete removes track. Removing the last remaining position goes out as a
// flush so peers get an explicit "playlist emptied" signal. Deleting the
// current position moves playback on to the position that followed it.
func (p *Player) Delete(track playlist.OrderedTrack) error {
	_, err := p.rec.ApplyFunc(func(s *State) (playlist.Patch, []playlist.Track, error) {
		l := &s.Tracks
		if n, ok := l.View[track.OrderHash]; ok && s.CurrentItem != nil && s.CurrentItem.OrderHash == track.OrderHash {
			if n.Next != nil {
				s.CurrentItem = &CurrentItem{OrderHash: *n.Next, State: TrackState{IsPlaying: s.CurrentItem.State.IsPlaying}}
			} else {
				s.CurrentItem = nil
			}
		}
		if l.Count() == 1 {
			if _, ok := l.View[track.OrderHash]; !ok {
				return playlist.Patch{}, nil, &playlist.CorruptionError{Op: "delete", Hash: track.OrderHash, Reason: "node not found"}
			}
			flush, _ := playlist.FlushPatch(nil)
			return flush, nil, nil
		}
		changes, err := l.DeletePatch(track)
		if err != nil {
			return playlist.Patch{}, nil, err
		}
		return playlist.Patch{Changes: changes}, nil, nil
	}, p.signature)
	return err
}

// Move relocates track after after; the moved position gets a new hash,
// which the current item follows.
func (p *Player) Move(track playlist.OrderedTrack, after *playlist.OrderedTrack) (playlist.OrderedTrack, error) {
	var moved playlist.OrderedTrack
	_, err := p.rec.ApplyFunc(func(s *State) (playlist.Patch, []playlist.Track, error) {
		l := &s.Tracks
		changes, out, err := l.MovePatch(track, after)
		if err != nil {
			return playlist.Patch{}, nil, err
		}
		if s.CurrentItem != nil && s.CurrentItem.OrderHash == track.OrderHash {
			s.CurrentItem = &CurrentItem{OrderHash: out.OrderHash, State: s.CurrentItem.State}
		}
		moved = out
		return playlist.Patch{Changes: changes}, nil, nil
	}, p.signature)
	return moved, err
}

// Clear empties the playlist.
func (p *Player) Clear() error {
	flush, _ := playlist.FlushPatch(nil)
	_, err := p.rec.Apply(flush, nil, p.signature)
	return err
}

// Replace swaps the whole ordering for tracks.
func (p *Player) Replace(tracks []playlist.Track) ([]playlist.OrderedTrack, error) {
	flush, inserted := playlist.FlushPatch(tracks)
	if _, err := p.rec.Apply(flush, tracks, p.signature); err != nil {
		return nil, err
	}
	return inserted, nil
}

// Play makes hash the current position and starts it from zero.
func (p *Player) Play(hash string) error {
	_, err := p.store.Dispatch(Action{
		Name:      "play",
		Signature: p.signature,
		Reduce: func(s *State) error {
			if _, ok := s.Tracks.View[hash]; !ok {
				return ErrUnknownPosition
			}
			s.CurrentItem = &CurrentItem{OrderHash: hash, State: TrackState{IsPlaying: true}}
			return nil
		},
	})
	return err
}

// Advance moves to the next position. At the tail it wraps to the head when
// repeat is on and stops otherwise. With shuffle on, any other position may
// be picked.
func (p *Player) Advance() error {
	_, err := p.store.Dispatch(Action{
		Name:      "advance",
		Signature: p.signature,
		Reduce: func(s *State) error {
			next, ok := nextPosition(s)
			if !ok {
				if s.CurrentItem != nil {
					s.CurrentItem.State = TrackState{Progress: 0, IsPlaying: false}
				}
				return nil
			}
			playing := s.CurrentItem == nil || s.CurrentItem.State.IsPlaying
			s.CurrentItem = &CurrentItem{OrderHash: next.OrderHash, State: TrackState{IsPlaying: playing}}
			return nil
		},
	})
	return err
}

// Rewind moves to the previous position, or restarts the head.
func (p *Player) Rewind() error {
	_, err := p.store.Dispatch(Action{
		Name:      "rewind",
		Signature: p.signature,
		Reduce: func(s *State) error {
			cur, ok := s.Current()
			if !ok {
				return nil
			}
			target := cur
			if prev, ok := s.Tracks.Previous(cur); ok {
				target = prev
			}
			s.CurrentItem = &CurrentItem{OrderHash: target.OrderHash, State: TrackState{IsPlaying: s.CurrentItem.State.IsPlaying}}
			return nil
		},
	})
	return err
}

func nextPosition(s *State) (playlist.OrderedTrack, bool) {
	cur, hasCur := s.Current()
	if s.Tracks.ShouldShuffle && s.Tracks.Count() > 1 {
		ordered, err := s.Tracks.OrderedTracks()
		if err != nil {
			return playlist.OrderedTrack{}, false
		}
		for {
			pick := ordered[rand.IntN(len(ordered))]
			if !hasCur || !pick.Equal(cur) {
				return pick, true
			}
		}
	}
	if !hasCur {
		return s.Tracks.Head()
	}
	if next, ok := s.Tracks.Next(cur); ok {
		return next, true
	}
	if s.Tracks.ShouldRepeat {
		return s.Tracks.Head()
	}
	return playlist.OrderedTrack{}, false
}

func (p *Player) SetTrackState(progress float64, playing bool) error {
	_, err := p.store.Dispatch(SetTrackState(p.signature, TrackState{Progress: progress, IsPlaying: playing}))
	return err
}

func (p *Player) SetBlocked(blocked bool) error {
	_, err := p.store.Dispatch(SetBlocked(p.signature, blocked))
	return err
}

func (p *Player) SetPlaybackMode(shuffle, repeat bool) error {
	_, err := p.store.Dispatch(SetPlaybackMode(p.signature, shuffle, repeat))
	return err
}

// AddPreviewTime accounts preview time consumed locally, in microseconds.
func (p *Player) AddPreviewTime(trackID string, micros uint64) error {
	_, err := p.store.Dispatch(Action{
		Name:      "add_preview_time",
		Signature: p.signature,
		Reduce: func(s *State) error {
			if s.Tracks.PreviewTime == nil {
				s.Tracks.PreviewTime = make(map[string]uint64)
			}
			s.Tracks.PreviewTime[trackID] += micros
			return nil
		},
	})
	return err
}
