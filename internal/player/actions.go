package player

import (
	"slices"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

// HydrationSignature tags payload merges made by the reconciler. It never
// equals a session signature, so hydration is never sent out.
const HydrationSignature = "hydration"

// AddTracks caches payloads without touching the ordering.
func AddTracks(signature string, tracks []playlist.Track) Action {
	return Action{
		Name:      "add_tracks",
		Signature: signature,
		Reduce: func(s *State) error {
			s.Tracks.AddTracks(tracks...)
			return nil
		},
	}
}

// SetCurrentItem points the session at hash, or at nothing when hash is nil.
// A new position starts from zero; the playing flag is kept.
func SetCurrentItem(signature string, hash *string) Action {
	return Action{
		Name:      "set_current_item",
		Signature: signature,
		Reduce: func(s *State) error {
			if hash == nil {
				s.CurrentItem = nil
				return nil
			}
			if _, ok := s.Tracks.View[*hash]; !ok {
				return ErrUnknownPosition
			}
			playing := false
			if s.CurrentItem != nil {
				if s.CurrentItem.OrderHash == *hash {
					return nil
				}
				playing = s.CurrentItem.State.IsPlaying
			}
			s.CurrentItem = &CurrentItem{OrderHash: *hash, State: TrackState{IsPlaying: playing}}
			return nil
		},
	}
}

// SetTrackState updates progress of the current item. Without a current
// item there is nothing to update and the action is a no-op.
func SetTrackState(signature string, state TrackState) Action {
	return Action{
		Name:      "set_track_state",
		Signature: signature,
		Reduce: func(s *State) error {
			if s.CurrentItem == nil {
				return nil
			}
			s.CurrentItem.State = state
			return nil
		},
	}
}

func SetBlocked(signature string, blocked bool) Action {
	return Action{
		Name:      "set_blocked",
		Signature: signature,
		Reduce: func(s *State) error {
			s.IsBlocked = blocked
			return nil
		},
	}
}

// SetPreviewTimes replaces the server synced preview counters.
func SetPreviewTimes(signature string, times map[string]uint64) Action {
	return Action{
		Name:      "set_preview_times",
		Signature: signature,
		Reduce: func(s *State) error {
			s.Tracks.PreviewTime = make(map[string]uint64, len(times))
			for id, v := range times {
				s.Tracks.PreviewTime[id] = v
			}
			return nil
		},
	}
}

func SetPlaybackMode(signature string, shuffle, repeat bool) Action {
	return Action{
		Name:      "set_playback_mode",
		Signature: signature,
		Reduce: func(s *State) error {
			s.Tracks.ShouldShuffle = shuffle
			s.Tracks.ShouldRepeat = repeat
			return nil
		},
	}
}

// MarkResync flags the state for an authoritative flush.
func MarkResync(signature string) Action {
	return Action{
		Name:      "mark_resync",
		Signature: signature,
		Reduce: func(s *State) error {
			s.NeedsResync = true
			return nil
		},
	}
}

func setFetchError(msg string) Action {
	return Action{
		Name:      "fetch_error",
		Signature: HydrationSignature,
		Reduce: func(s *State) error {
			s.FetchError = msg
			return nil
		},
	}
}

// hydrated merges the payloads fetched for requested. Requested ids that
// came back without a payload are recorded as unresolved.
func hydrated(requested []string, tracks []playlist.Track) Action {
	return Action{
		Name:      "hydrated",
		Signature: HydrationSignature,
		Reduce: func(s *State) error {
			s.Tracks.AddTracks(tracks...)
			missing := s.Tracks.MissingIDs()
			unresolved := make([]string, 0, len(missing))
			for _, id := range missing {
				if slices.Contains(requested, id) || s.IsUnresolved(id) {
					unresolved = append(unresolved, id)
				}
			}
			s.Unresolved = nil
			if len(unresolved) > 0 {
				s.Unresolved = unresolved
			}
			if len(missing) == 0 {
				s.FetchError = ""
			}
			return nil
		},
	}
}
