package player

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchTracks(ctx context.Context, ids []string) ([]playlist.Track, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]playlist.Track), args.Error(1)
}

func track(id string) playlist.Track {
	return playlist.Track{ID: id, Title: "Song " + id, Artist: "Band " + id}
}

func orderedIDs(s *State) []string {
	tracks, err := s.Tracks.OrderedTracks()
	if err != nil {
		panic(err)
	}
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Track.ID)
	}
	return out
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
