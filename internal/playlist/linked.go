package playlist

import "sort"

// LinkedPlaylist keeps the shared ordering as node records keyed by order
// hash (View), separately from the payload cache (Dump). The ordered slice
// is always derived by walking View; it is never stored.
type LinkedPlaylist struct {
	View        map[string]Node   `json:"reduxView"`
	Dump        map[string]Track  `json:"trackDump"`
	PreviewTime map[string]uint64 `json:"previewTime"`

	ShouldShuffle bool `json:"shouldShuffle"`
	ShouldRepeat  bool `json:"shouldRepeat"`
}

func New() LinkedPlaylist {
	return LinkedPlaylist{
		View:        make(map[string]Node),
		Dump:        make(map[string]Track),
		PreviewTime: make(map[string]uint64),
	}
}

// Clone returns a copy that shares nothing mutable with l.
func (l LinkedPlaylist) Clone() LinkedPlaylist {
	c := LinkedPlaylist{
		View:          make(map[string]Node, len(l.View)),
		Dump:          make(map[string]Track, len(l.Dump)),
		PreviewTime:   make(map[string]uint64, len(l.PreviewTime)),
		ShouldShuffle: l.ShouldShuffle,
		ShouldRepeat:  l.ShouldRepeat,
	}
	for k, n := range l.View {
		n.Next = clonePtr(n.Next)
		n.Previous = clonePtr(n.Previous)
		c.View[k] = n
	}
	for k, t := range l.Dump {
		c.Dump[k] = t
	}
	for k, v := range l.PreviewTime {
		c.PreviewTime[k] = v
	}
	return c
}

// Count is the number of positions, not the number of cached payloads.
func (l *LinkedPlaylist) Count() int {
	return len(l.View)
}

func (l *LinkedPlaylist) ordered(n Node) OrderedTrack {
	t, ok := l.Dump[n.ID]
	if !ok {
		return OrderedTrack{Track: Track{ID: n.ID}, OrderHash: n.Hash, Pending: true}
	}
	return OrderedTrack{Track: t, OrderHash: n.Hash}
}

func (l *LinkedPlaylist) head() (Node, error) {
	var (
		head  Node
		found int
	)
	for _, n := range l.View {
		if n.Previous == nil {
			head = n
			found++
		}
	}
	switch {
	case found == 0:
		return Node{}, corrupt("traverse", "", "no head node")
	case found > 1:
		return Node{}, corrupt("traverse", "", "multiple head nodes")
	}
	return head, nil
}

// OrderedTracks walks the list from its head. The walk is bounded by Count;
// cycles, dangling pointers and unreachable nodes are reported as corruption.
// Positions without a cached payload come back with Pending set.
func (l *LinkedPlaylist) OrderedTracks() ([]OrderedTrack, error) {
	if len(l.View) == 0 {
		return nil, nil
	}
	cur, err := l.head()
	if err != nil {
		return nil, err
	}
	out := make([]OrderedTrack, 0, len(l.View))
	for {
		if len(out) == len(l.View) {
			return nil, corrupt("traverse", cur.Hash, "traversal overrun, cycle in view")
		}
		out = append(out, l.ordered(cur))
		if cur.Next == nil {
			break
		}
		next, ok := l.View[*cur.Next]
		if !ok {
			return nil, corrupt("traverse", cur.Hash, "next points to missing node "+*cur.Next)
		}
		cur = next
	}
	if len(out) != len(l.View) {
		return nil, corrupt("traverse", "", "unreachable nodes in view")
	}
	return out, nil
}

func (l *LinkedPlaylist) Head() (OrderedTrack, bool) {
	if len(l.View) == 0 {
		return OrderedTrack{}, false
	}
	n, err := l.head()
	if err != nil {
		return OrderedTrack{}, false
	}
	return l.ordered(n), true
}

func (l *LinkedPlaylist) Lookup(hash string) (OrderedTrack, bool) {
	n, ok := l.View[hash]
	if !ok {
		return OrderedTrack{}, false
	}
	return l.ordered(n), true
}

// Next returns the position following after.
func (l *LinkedPlaylist) Next(after OrderedTrack) (OrderedTrack, bool) {
	n, ok := l.View[after.OrderHash]
	if !ok || n.Next == nil {
		return OrderedTrack{}, false
	}
	return l.Lookup(*n.Next)
}

// Previous returns the position preceding before.
func (l *LinkedPlaylist) Previous(before OrderedTrack) (OrderedTrack, bool) {
	n, ok := l.View[before.OrderHash]
	if !ok || n.Previous == nil {
		return OrderedTrack{}, false
	}
	return l.Lookup(*n.Previous)
}

// Index returns the zero-based position of hash, or -1.
func (l *LinkedPlaylist) Index(hash string) (int, error) {
	tracks, err := l.OrderedTracks()
	if err != nil {
		return -1, err
	}
	for i, t := range tracks {
		if t.OrderHash == hash {
			return i, nil
		}
	}
	return -1, nil
}

// Validate checks every structural invariant of the view: one head, one
// tail, symmetric links, no dangling pointers and full reachability.
func (l *LinkedPlaylist) Validate() error {
	if len(l.View) == 0 {
		return nil
	}
	tails := 0
	for key, n := range l.View {
		if n.Hash != key {
			return corrupt("validate", key, "node hash does not match its key")
		}
		if n.ID == "" {
			return corrupt("validate", key, "node without track id")
		}
		if n.Next == nil {
			tails++
		} else {
			next, ok := l.View[*n.Next]
			if !ok {
				return corrupt("validate", key, "next points to missing node "+*n.Next)
			}
			if !ptrEqual(next.Previous, &key) {
				return corrupt("validate", key, "next node does not link back")
			}
		}
		if n.Previous != nil {
			prev, ok := l.View[*n.Previous]
			if !ok {
				return corrupt("validate", key, "previous points to missing node "+*n.Previous)
			}
			if !ptrEqual(prev.Next, &key) {
				return corrupt("validate", key, "previous node does not link forward")
			}
		}
	}
	if tails != 1 {
		return corrupt("validate", "", "view must have exactly one tail")
	}
	_, err := l.OrderedTracks()
	return err
}

// ReferencedIDs returns the distinct track ids used by the view, sorted.
func (l *LinkedPlaylist) ReferencedIDs() []string {
	seen := make(map[string]struct{}, len(l.View))
	for _, n := range l.View {
		seen[n.ID] = struct{}{}
	}
	return sortedKeys(seen)
}

// MissingIDs returns referenced track ids that have no payload in Dump.
func (l *LinkedPlaylist) MissingIDs() []string {
	missing := make(map[string]struct{})
	for _, n := range l.View {
		if _, ok := l.Dump[n.ID]; !ok {
			missing[n.ID] = struct{}{}
		}
	}
	return sortedKeys(missing)
}

// AddTracks caches payloads in Dump.
func (l *LinkedPlaylist) AddTracks(tracks ...Track) {
	if l.Dump == nil {
		l.Dump = make(map[string]Track, len(tracks))
	}
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		l.Dump[t.ID] = t
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
