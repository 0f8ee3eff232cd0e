package player

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

// TrackFetcher resolves track payloads by id.
type TrackFetcher interface {
	FetchTracks(ctx context.Context, ids []string) ([]playlist.Track, error)
}

// PatchBuilder computes a patch against the live state, under the store's
// writer lock. It returns the payloads it already has in hand. It may move
// the current item, but must leave the ordering to the returned patch.
type PatchBuilder func(s *State) (playlist.Patch, []playlist.Track, error)

const defaultFetchTimeout = 15 * time.Second

// Reconciler commits ordering patches and hydrates the payloads they
// reference. Ordering is committed first; hydration follows as a separate
// transition that only ever adds to the payload cache.
type Reconciler struct {
	store   *Store
	fetcher TrackFetcher
	logger  zerolog.Logger

	base         context.Context
	fetchTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

func NewReconciler(ctx context.Context, store *Store, fetcher TrackFetcher, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:        store,
		fetcher:      fetcher,
		logger:       logger.With().Str("component", "reconciler").Logger(),
		base:         ctx,
		fetchTimeout: defaultFetchTimeout,
		inflight:     make(map[string]bool),
	}
}

// Apply commits patch tagged with signature. associated are payloads the
// caller already has; they go straight into the cache.
func (r *Reconciler) Apply(patch playlist.Patch, associated []playlist.Track, signature string) (*State, error) {
	return r.ApplyFunc(func(*State) (playlist.Patch, []playlist.Track, error) {
		return patch, associated, nil
	}, signature)
}

// ApplyFunc is Apply with the patch computed inside the write transition,
// so local edits are always diffs against the state they are applied to.
func (r *Reconciler) ApplyFunc(build PatchBuilder, signature string) (*State, error) {
	var (
		missing  []string
		buildErr error
	)
	next, err := r.store.Dispatch(Action{
		Name:      "apply_patch",
		Signature: signature,
		Reduce: func(s *State) error {
			patch, associated, err := build(s)
			if err != nil {
				buildErr = err
				return err
			}
			s.Tracks.Apply(patch)
			if err := s.Tracks.Validate(); err != nil {
				return err
			}
			s.Tracks.AddTracks(associated...)
			missing = s.Tracks.MissingIDs()
			s.Unresolved = keepMissing(s.Unresolved, missing)

			s.LastPatch = &PatchMarker{Patch: patch, Signature: signature, Rev: s.Rev + 1}
			if patch.ShouldFlush {
				s.CurrentItem = nil
				s.NeedsResync = false
			} else if _, ok := s.Current(); s.CurrentItem != nil && !ok {
				// the playing position was deleted
				s.CurrentItem = nil
			}
			return nil
		},
	})
	if buildErr != nil {
		// the edit referenced something the view does not have; nothing was
		// applied, so the view itself is still sound
		return next, buildErr
	}
	if err != nil {
		if errors.Is(err, playlist.ErrCorrupt) {
			r.logger.Error().Err(err).Str("signature", signature).Msg("patch rejected, requesting resync")
			if _, merr := r.store.Dispatch(MarkResync(signature)); merr != nil {
				r.logger.Error().Err(merr).Msg("mark resync")
			}
			return next, fmt.Errorf("%w: %v", ErrResyncRequired, err)
		}
		return next, err
	}

	if len(missing) > 0 {
		r.hydrate(missing)
	}
	return next, nil
}

// Rehydrate retries fetching every payload the current view still misses.
func (r *Reconciler) Rehydrate() {
	missing := r.store.State().Tracks.MissingIDs()
	if len(missing) > 0 {
		r.hydrate(missing)
	}
}

// keepMissing drops unresolved ids that are no longer referenced or that
// got a payload meanwhile.
func keepMissing(unresolved, missing []string) []string {
	if len(unresolved) == 0 {
		return nil
	}
	kept := make([]string, 0, len(unresolved))
	for _, id := range unresolved {
		if slices.Contains(missing, id) {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// Wait blocks until every in-flight hydration has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) hydrate(ids []string) {
	r.mu.Lock()
	todo := make([]string, 0, len(ids))
	for _, id := range ids {
		if r.inflight[id] {
			continue
		}
		r.inflight[id] = true
		todo = append(todo, id)
	}
	r.mu.Unlock()
	if len(todo) == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			for _, id := range todo {
				delete(r.inflight, id)
			}
			r.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(r.base, r.fetchTimeout)
		defer cancel()

		tracks, err := r.fetcher.FetchTracks(ctx, todo)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrFetch, err)
			r.logger.Warn().Err(err).Strs("ids", todo).Msg("hydrate tracks")
			if _, derr := r.store.Dispatch(setFetchError(err.Error())); derr != nil {
				r.logger.Error().Err(derr).Msg("record fetch error")
			}
			return
		}
		if _, err := r.store.Dispatch(hydrated(todo, tracks)); err != nil {
			r.logger.Error().Err(err).Msg("commit hydrated tracks")
			return
		}
		r.logger.Debug().Int("count", len(tracks)).Msg("tracks hydrated")
	}()
}
