package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

var trackColumns = []string{"id", "title", "artist", "provider", "provider_track_id", "thumbnail_url", "duration_ms"}

func setupMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewRepository(mock), mock
}

func TestRepository_GetTracks(t *testing.T) {
	repo, mock := setupMockRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM tracks WHERE id = ANY").
		WithArgs([]string{"a", "b"}).
		WillReturnRows(pgxmock.NewRows(trackColumns).
			AddRow("a", "Song A", "Artist", "youtube", "a", "http://img/a", 180000))

	tracks, err := repo.GetTracks(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []playlist.Track{{
		ID:              "a",
		Title:           "Song A",
		Artist:          "Artist",
		Provider:        "youtube",
		ProviderTrackID: "a",
		ThumbnailURL:    "http://img/a",
		DurationMs:      180000,
	}}, tracks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetTracksNoIDs(t *testing.T) {
	repo, mock := setupMockRepo(t)
	defer mock.Close()

	tracks, err := repo.GetTracks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tracks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetTracksError(t *testing.T) {
	repo, mock := setupMockRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM tracks").
		WithArgs([]string{"a"}).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetTracks(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "query tracks")
}

func TestRepository_UpsertTracks(t *testing.T) {
	repo, mock := setupMockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tracks").
		WithArgs("a", "Song A", "", "", "", "", 1000).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO tracks").
		WithArgs("b", "Song B", "B", "", "", "", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.UpsertTracks(context.Background(), []playlist.Track{
		{ID: "a", Title: "Song A", DurationMs: 1000},
		{ID: "b", Title: "Song B", Artist: "B"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertTracksRollsBackOnError(t *testing.T) {
	repo, mock := setupMockRepo(t)
	defer mock.Close()

	tracks := []playlist.Track{
		{ID: "a", Title: "Song A", DurationMs: 1000},
		{ID: "b", Title: "Song B", Artist: "B"},
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tracks").
		WithArgs("a", "Song A", "", "", "", "", 1000).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO tracks").
		WithArgs("b", "Song B", "B", "", "", "", 0).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.UpsertTracks(context.Background(), tracks)
	assert.ErrorContains(t, err, "upsert track b")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertTracksBeginError(t *testing.T) {
	repo, mock := setupMockRepo(t)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := repo.UpsertTracks(context.Background(), []playlist.Track{{ID: "a", Title: "Song A"}})
	assert.ErrorContains(t, err, "begin upsert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertTracksEmpty(t *testing.T) {
	repo, mock := setupMockRepo(t)
	defer mock.Close()

	require.NoError(t, repo.UpsertTracks(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tracks").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_tracks_provider").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, AutoMigrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
