package realtime

import (
	"errors"
	"fmt"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
	"github.com/volkzayaz/RR-sub003/internal/wire"
)

var ErrRejected = errors.New("realtime: command rejected")

// rejectError is returned when a command does not fit the authoritative
// session. The sender gets the reason and a fresh snapshot.
type rejectError struct {
	msg string
}

func (e *rejectError) Error() string { return "realtime: " + e.msg }

func (e *rejectError) Unwrap() error { return ErrRejected }

func reject(format string, args ...any) error {
	return &rejectError{msg: fmt.Sprintf(format, args...)}
}

// Session is the relay's authoritative copy of one shared playlist.
type Session struct {
	Seq       uint64                  `json:"seq"`
	Playlist  playlist.LinkedPlaylist `json:"playlist"`
	Now       *wire.NowPlaying        `json:"now,omitempty"`
	IsBlocked bool                    `json:"isBlocked"`
}

func NewSession() Session {
	return Session{Playlist: playlist.New()}
}

// Apply folds one sequenced command into the session. A command that would
// corrupt the ordering or point at a missing position is rejected and leaves
// the session untouched.
func (s *Session) Apply(env wire.Envelope) error {
	switch env.Type {
	case wire.TypePlaylistPatch:
		var p wire.PlaylistPatch
		if err := env.Decode(&p); err != nil {
			return reject("%v", err)
		}
		next := s.Playlist.Clone()
		next.Apply(p)
		if err := next.Validate(); err != nil {
			return reject("patch: %v", err)
		}
		prune(&next)
		s.Playlist = next
		if p.ShouldFlush {
			s.Now = nil
		}
		if s.Now != nil {
			if _, ok := s.Playlist.View[s.Now.OrderHash]; !ok {
				s.Now = nil
			}
		}

	case wire.TypeTracks:
		var p wire.Tracks
		if err := env.Decode(&p); err != nil {
			return reject("%v", err)
		}
		s.Playlist.AddTracks(p.Tracks...)

	case wire.TypeCurrentTrack:
		var p wire.CurrentTrack
		if err := env.Decode(&p); err != nil {
			return reject("%v", err)
		}
		if p.OrderHash == nil {
			s.Now = nil
			return nil
		}
		if _, ok := s.Playlist.View[*p.OrderHash]; !ok {
			return reject("unknown position %q", *p.OrderHash)
		}
		if s.Now != nil && s.Now.OrderHash == *p.OrderHash {
			return nil
		}
		playing := s.Now != nil && s.Now.IsPlaying
		s.Now = &wire.NowPlaying{OrderHash: *p.OrderHash, IsPlaying: playing}

	case wire.TypeTrackState:
		var p wire.TrackState
		if err := env.Decode(&p); err != nil {
			return reject("%v", err)
		}
		if s.Now != nil {
			s.Now.Progress = p.Progress
			s.Now.IsPlaying = p.IsPlaying
		}

	case wire.TypeBlockState:
		var p wire.BlockState
		if err := env.Decode(&p); err != nil {
			return reject("%v", err)
		}
		s.IsBlocked = p.IsBlocked

	case wire.TypePreviewTimes:
		var p wire.PreviewTimes
		if err := env.Decode(&p); err != nil {
			return reject("%v", err)
		}
		s.Playlist.PreviewTime = make(map[string]uint64, len(p.Mapping))
		for id, v := range p.Mapping {
			s.Playlist.PreviewTime[id] = v
		}

	default:
		return reject("%s is not a session command", env.Type)
	}
	return nil
}

// Snapshot encodes the session for a resyncing client.
func (s *Session) Snapshot() wire.Snapshot {
	tracks := make([]playlist.Track, 0, len(s.Playlist.Dump))
	for _, id := range s.Playlist.ReferencedIDs() {
		if t, ok := s.Playlist.Dump[id]; ok {
			tracks = append(tracks, t)
		}
	}
	snap := wire.Snapshot{
		Playlist:     s.Playlist.Snapshot(),
		Tracks:       tracks,
		IsBlocked:    s.IsBlocked,
		PreviewTimes: s.Playlist.PreviewTime,
	}
	if s.Now != nil {
		now := *s.Now
		snap.Now = &now
	}
	return snap
}

// prune drops cached payloads no position refers to any more.
func prune(l *playlist.LinkedPlaylist) {
	referenced := make(map[string]bool, len(l.View))
	for _, id := range l.ReferencedIDs() {
		referenced[id] = true
	}
	for id := range l.Dump {
		if !referenced[id] {
			delete(l.Dump, id)
		}
	}
}
