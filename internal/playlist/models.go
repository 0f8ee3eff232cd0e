package playlist

// Track is the full metadata payload of a track. Payloads are content
// addressed by ID and cached in LinkedPlaylist.Dump.
type Track struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Provider        string `json:"provider,omitempty"`        // "youtube"
	ProviderTrackID string `json:"providerTrackId,omitempty"` // video id at the provider
	ThumbnailURL    string `json:"thumbnailUrl,omitempty"`
	DurationMs      int    `json:"durationMs"`
}

// OrderedTrack is a track placed at one position of the shared ordering.
// Two ordered tracks are the same position iff their OrderHash matches.
type OrderedTrack struct {
	Track     Track  `json:"track"`
	OrderHash string `json:"orderHash"`

	// Pending is set when the position references a track whose payload has
	// not been fetched yet; only Track.ID is meaningful then.
	Pending bool `json:"-"`
}

// NewOrderedTrack places track at a position identified by hash. An empty
// hash gets a fresh random key.
func NewOrderedTrack(track Track, hash string) OrderedTrack {
	if hash == "" {
		hash = NewHash()
	}
	return OrderedTrack{Track: track, OrderHash: hash}
}

func (o OrderedTrack) Equal(other OrderedTrack) bool {
	return o.OrderHash == other.OrderHash
}

// Node returns the linked-list record for this position.
func (o OrderedTrack) Node(previous, next *string) Node {
	return Node{
		ID:       o.Track.ID,
		Hash:     o.OrderHash,
		Previous: clonePtr(previous),
		Next:     clonePtr(next),
	}
}

// Node is one entry of the hash-map encoded doubly linked list.
type Node struct {
	ID       string  `json:"id"`
	Hash     string  `json:"hash"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

func strPtr(s string) *string {
	return &s
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	return strPtr(*p)
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
