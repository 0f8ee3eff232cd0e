package player

import (
	"errors"
	"slices"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

var (
	// ErrResyncRequired is returned when a patch would break the view. The
	// patch is not committed and the state is flagged for an authoritative
	// flush from the relay.
	ErrResyncRequired = errors.New("player: resync required")

	// ErrFetch wraps failures of the track metadata collaborator.
	ErrFetch = errors.New("player: fetch tracks")

	ErrUnknownPosition = errors.New("player: unknown playlist position")
)

// TrackState is the playback progress of the current item.
type TrackState struct {
	Progress  float64 `json:"progress"` // seconds
	IsPlaying bool    `json:"isPlaying"`
}

type CurrentItem struct {
	OrderHash string     `json:"orderHash"`
	State     TrackState `json:"state"`
}

// PatchMarker records the last committed ordering patch and who sent it.
type PatchMarker struct {
	Patch     playlist.Patch
	Signature string
	Rev       uint64
}

// State is one immutable snapshot of the session. Snapshots handed out by
// the Store must be treated as read-only.
type State struct {
	Rev uint64

	Tracks      playlist.LinkedPlaylist
	CurrentItem *CurrentItem
	LastPatch   *PatchMarker
	IsBlocked   bool

	// FetchError holds the last hydration failure; ordering is kept.
	FetchError string
	// Unresolved lists referenced track ids the fetcher returned no payload
	// for. They stay pending until a retry finds them.
	Unresolved []string
	// NeedsResync is raised when the local view could not take a patch.
	NeedsResync bool
}

func NewState() State {
	return State{Tracks: playlist.New()}
}

func (s State) Clone() State {
	c := s
	c.Tracks = s.Tracks.Clone()
	if s.CurrentItem != nil {
		ci := *s.CurrentItem
		c.CurrentItem = &ci
	}
	return c
}

// CurrentHash returns the order hash of the active position, if any.
func (s *State) CurrentHash() *string {
	if s.CurrentItem == nil {
		return nil
	}
	h := s.CurrentItem.OrderHash
	return &h
}

// IsUnresolved reports whether id is known to have no payload upstream.
func (s *State) IsUnresolved(id string) bool {
	return slices.Contains(s.Unresolved, id)
}

// Current resolves the active position against the view.
func (s *State) Current() (playlist.OrderedTrack, bool) {
	if s.CurrentItem == nil {
		return playlist.OrderedTrack{}, false
	}
	return s.Tracks.Lookup(s.CurrentItem.OrderHash)
}
