// Package wire defines the messages exchanged over the shared session
// channel. Every message travels as an Envelope in the same
// {"type": ..., "payload": ...} shape the realtime service broadcasts.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

type Type string

const (
	TypePlaylistPatch Type = "playlist.patch"
	TypeTracks        Type = "playlist.tracks"
	TypeCurrentTrack  Type = "player.current_track"
	TypeTrackState    Type = "player.track_state"
	TypeBlockState    Type = "player.block_state"
	TypePreviewTimes  Type = "player.preview_times"

	// TypeResync asks the relay for an authoritative snapshot.
	TypeResync Type = "session.resync"
	// TypeSnapshot answers a resync. It carries the whole authoritative
	// session and its Seq is the session sequence the snapshot was taken at.
	TypeSnapshot Type = "session.snapshot"
	// TypeError reports a rejected envelope back to its sender.
	TypeError Type = "error"
)

var ErrUnknownType = errors.New("wire: unknown message type")

// Envelope wraps one command. ID is a client generated correlation id used
// by the relay to drop re-sent duplicates. Origin is the sender's session
// signature (empty for the relay itself). Seq is stamped by the relay and
// grows by one for every broadcast of a session.
type Envelope struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Session string          `json:"session,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type PlaylistPatch = playlist.Patch

type Tracks struct {
	Tracks []playlist.Track `json:"tracks"`
}

type CurrentTrack struct {
	OrderHash *string `json:"orderHash"`
}

type TrackState struct {
	Progress      float64 `json:"progress"`
	IsPlaying     bool    `json:"isPlaying"`
	SignatureHash string  `json:"signatureHash"`
}

type BlockState struct {
	IsBlocked bool `json:"isBlocked"`
}

type PreviewTimes struct {
	Mapping map[string]uint64 `json:"mapping"`
}

// NowPlaying is the relay's record of the current position.
type NowPlaying struct {
	OrderHash string  `json:"orderHash"`
	Progress  float64 `json:"progress"`
	IsPlaying bool    `json:"isPlaying"`
}

// Snapshot is the authoritative session state. Playlist is a flush patch.
type Snapshot struct {
	Playlist     playlist.Patch    `json:"playlist"`
	Tracks       []playlist.Track  `json:"tracks"`
	Now          *NowPlaying       `json:"now"`
	IsBlocked    bool              `json:"isBlocked"`
	PreviewTimes map[string]uint64 `json:"previewTimes"`
}

type Error struct {
	RefID   string `json:"refId,omitempty"`
	Message string `json:"message"`
}

// New builds an envelope with a fresh correlation id.
func New(t Type, origin string, payload any) (Envelope, error) {
	env := Envelope{ID: uuid.NewString(), Type: t, Origin: origin}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: encode %s: %w", t, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("wire: %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("wire: decode %s: %w", e.Type, err)
	}
	return nil
}

// Parse decodes a raw frame and checks that its type is known.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: parse: %w", err)
	}
	if !env.Type.Known() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return env, nil
}

func (t Type) Known() bool {
	switch t {
	case TypePlaylistPatch, TypeTracks, TypeCurrentTrack, TypeTrackState,
		TypeBlockState, TypePreviewTimes, TypeResync, TypeSnapshot, TypeError:
		return true
	}
	return false
}

// Sequenced reports whether the relay stamps and broadcasts this type.
func (t Type) Sequenced() bool {
	switch t {
	case TypePlaylistPatch, TypeTracks, TypeCurrentTrack, TypeTrackState,
		TypeBlockState, TypePreviewTimes:
		return true
	}
	return false
}
