package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

// Client fetches track payloads from a catalog service. It satisfies
// player.TrackFetcher.
type Client struct {
	baseURL    string
	http       *http.Client
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRetry replaces the retry policy of FetchTracks.
func WithRetry(f func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = f }
}

func NewClient(baseURL string, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		newBackOff: defaultRetry,
		logger:     logger.With().Str("component", "catalog-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

// FetchTracks returns the tracks the catalog knows among ids. Requests are
// split to stay within what the catalog accepts per call. Server errors and
// transport failures are retried; client errors are not.
func (c *Client) FetchTracks(ctx context.Context, ids []string) ([]playlist.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]playlist.Track, 0, len(ids))
	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := min(start+maxIDsPerRequest, len(ids))
		tracks, err := c.fetchWithRetry(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, tracks...)
	}
	return out, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, ids []string) ([]playlist.Track, error) {
	var out []playlist.Track
	op := func() error {
		tracks, err := c.fetch(ctx, ids)
		if err != nil {
			return err
		}
		out = tracks
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Int("ids", len(ids)).Dur("retry_in", wait).Msg("fetch tracks")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, ids []string) ([]playlist.Track, error) {
	val := url.Values{}
	val.Set("ids", strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tracks?"+val.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("catalog status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("catalog status %d", resp.StatusCode))
	}

	var body TracksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode tracks: %w", err))
	}
	return body.Tracks, nil
}
