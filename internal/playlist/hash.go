package playlist

import "math/rand/v2"

const (
	hashAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// HashLength is the size of generated order hashes. With 62^5 keys the
	// collision odds for playlists of a few hundred entries are negligible;
	// InsertPatch still re-rolls on a clash.
	HashLength = 5
)

// NewHash returns a random alphanumeric order hash.
func NewHash() string {
	b := make([]byte, HashLength)
	for i := range b {
		b[i] = hashAlphabet[rand.IntN(len(hashAlphabet))]
	}
	return string(b)
}

func (l *LinkedPlaylist) freshHash(taken map[string]bool) string {
	for {
		h := NewHash()
		if _, exists := l.View[h]; exists {
			continue
		}
		if taken[h] {
			continue
		}
		return h
	}
}
