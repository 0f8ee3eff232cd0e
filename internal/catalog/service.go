package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

var ErrInvalidTrack = errors.New("invalid track")

// Provider looks up tracks the catalog has never stored.
type Provider interface {
	LookupTracks(ctx context.Context, ids []string) ([]playlist.Track, error)
}

// Service resolves track ids through cache, repository and provider, in that
// order. Whatever a slower layer finds is written back to the faster ones.
type Service struct {
	repo     *Repository
	cache    *Cache
	provider Provider
	logger   zerolog.Logger
}

// NewService wires the layers. cache and provider may be nil.
func NewService(repo *Repository, cache *Cache, provider Provider, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		provider: provider,
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
}

// Tracks returns the known tracks among ids in request order. Unknown ids
// are absent. Cache and provider failures degrade to fewer results; only a
// repository failure is an error.
func (s *Service) Tracks(ctx context.Context, ids []string) ([]playlist.Track, error) {
	ids = uniq(ids)
	found := make(map[string]playlist.Track, len(ids))

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, ids)
		if err != nil {
			s.logger.Warn().Err(err).Msg("track cache read")
		}
		for id, t := range cached {
			found[id] = t
		}
	}

	missing := absent(ids, found)
	if len(missing) > 0 {
		stored, err := s.repo.GetTracks(ctx, missing)
		if err != nil {
			return nil, err
		}
		s.remember(ctx, found, stored)
	}

	missing = absent(ids, found)
	if len(missing) > 0 && s.provider != nil {
		fetched, err := s.provider.LookupTracks(ctx, missing)
		if err != nil {
			s.logger.Warn().Err(err).Int("count", len(missing)).Msg("provider lookup")
		} else if len(fetched) > 0 {
			if err := s.repo.UpsertTracks(ctx, fetched); err != nil {
				return nil, err
			}
			s.remember(ctx, found, fetched)
		}
	}

	out := make([]playlist.Track, 0, len(found))
	for _, id := range ids {
		if t, ok := found[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Upsert stores tracks and invalidates their cached copies.
func (s *Service) Upsert(ctx context.Context, tracks []playlist.Track) error {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" || t.Title == "" {
			return ErrInvalidTrack
		}
		ids = append(ids, t.ID)
	}
	if err := s.repo.UpsertTracks(ctx, tracks); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Forget(ctx, ids...); err != nil {
			s.logger.Warn().Err(err).Msg("track cache invalidate")
		}
	}
	return nil
}

func (s *Service) remember(ctx context.Context, found map[string]playlist.Track, tracks []playlist.Track) {
	for _, t := range tracks {
		found[t.ID] = t
	}
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, tracks); err != nil {
		s.logger.Warn().Err(err).Msg("track cache write")
	}
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func absent(ids []string, found map[string]playlist.Track) []string {
	var out []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
