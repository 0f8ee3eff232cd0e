package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

// maxVideosPerRequest is the id limit of the videos endpoint.
const maxVideosPerRequest = 50

// YouTubeClient hydrates track ids that are YouTube video ids.
type YouTubeClient struct {
	apiKey    string
	videosURL string
	http      *http.Client
}

func NewYouTubeClient(apiKey, videosURL string) *YouTubeClient {
	return &YouTubeClient{
		apiKey:    apiKey,
		videosURL: videosURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type ytVideosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
				Medium struct {
					URL string `json:"url"`
				} `json:"medium"`
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// LookupTracks returns the tracks YouTube knows among ids. Unknown ids are
// silently absent from the result.
func (c *YouTubeClient) LookupTracks(ctx context.Context, ids []string) ([]playlist.Track, error) {
	out := make([]playlist.Track, 0, len(ids))
	for start := 0; start < len(ids); start += maxVideosPerRequest {
		end := min(start+maxVideosPerRequest, len(ids))
		tracks, err := c.lookup(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, tracks...)
	}
	return out, nil
}

func (c *YouTubeClient) lookup(ctx context.Context, ids []string) ([]playlist.Track, error) {
	val := url.Values{}
	val.Set("part", "snippet,contentDetails")
	val.Set("id", strings.Join(ids, ","))
	val.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.videosURL+"?"+val.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube videos status %d", resp.StatusCode)
	}

	var body ytVideosResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode youtube videos: %w", err)
	}

	out := make([]playlist.Track, 0, len(body.Items))
	for _, it := range body.Items {
		thumbs := it.Snippet.Thumbnails
		thumb := thumbs.High.URL
		if thumb == "" {
			thumb = thumbs.Medium.URL
		}
		if thumb == "" {
			thumb = thumbs.Default.URL
		}

		out = append(out, playlist.Track{
			ID:              it.ID,
			Title:           it.Snippet.Title,
			Artist:          it.Snippet.ChannelTitle,
			Provider:        "youtube",
			ProviderTrackID: it.ID,
			ThumbnailURL:    thumb,
			DurationMs:      parseISO8601Duration(it.ContentDetails.Duration),
		})
	}
	return out, nil
}

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISO8601Duration converts PT#H#M#S into milliseconds. Anything else,
// including day designators, is 0.
func parseISO8601Duration(duration string) int {
	matches := isoDuration.FindStringSubmatch(duration)
	if matches == nil {
		return 0
	}

	var total int
	for i, unit := range []int{3600, 60, 1} {
		if matches[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total * 1000
}
