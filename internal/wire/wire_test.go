package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

func TestNewAndParse(t *testing.T) {
	hash := "abcde"
	env, err := New(TypeCurrentTrack, "sig-1", CurrentTrack{OrderHash: &hash})
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "sig-1", env.Origin)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, parsed.ID)

	var ct CurrentTrack
	require.NoError(t, parsed.Decode(&ct))
	require.NotNil(t, ct.OrderHash)
	assert.Equal(t, "abcde", *ct.OrderHash)
}

func TestParse_PatchKeepsTombstones(t *testing.T) {
	raw := `{"id":"1","type":"playlist.patch","seq":7,"payload":{"shouldFlush":false,"patch":{"a":null,"b":{"next":null}}}}`
	env, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), env.Seq)

	var p PlaylistPatch
	require.NoError(t, env.Decode(&p))
	require.Contains(t, p.Changes, "a")
	assert.Nil(t, p.Changes["a"])
	assert.True(t, p.Changes["b"].Next.Set)
	assert.Nil(t, p.Changes["b"].Next.Value)
	assert.False(t, p.Changes["b"].Previous.Set)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`{"type":"bogus"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)

	env, err := New(TypeResync, "sig", nil)
	require.NoError(t, err)
	var v Tracks
	assert.Error(t, env.Decode(&v))
}

func TestTypeSequenced(t *testing.T) {
	assert.True(t, TypePlaylistPatch.Sequenced())
	assert.True(t, TypeTracks.Sequenced())
	assert.False(t, TypeResync.Sequenced())
	assert.False(t, TypeSnapshot.Sequenced())
	assert.True(t, TypeSnapshot.Known())
}

func TestTracksRoundTrip(t *testing.T) {
	env, err := New(TypeTracks, "", Tracks{Tracks: []playlist.Track{{ID: "A", Title: "x"}}})
	require.NoError(t, err)
	var out Tracks
	require.NoError(t, env.Decode(&out))
	assert.Equal(t, "x", out.Tracks[0].Title)
}
