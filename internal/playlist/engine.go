package playlist

// InsertPatch builds the changes that splice tracks, in order, right after
// the position after. A nil after inserts at the head, so inserting [A,B,C]
// with after == nil in front of [X] yields [A,B,C,X]. The receiver is not
// modified. The new positions are returned along with the patch.
func (l *LinkedPlaylist) InsertPatch(tracks []Track, after *OrderedTrack) (Changes, []OrderedTrack, error) {
	changes := Changes{}
	if len(tracks) == 0 {
		return changes, nil, nil
	}

	var left, right *string
	if after != nil {
		anchor, ok := l.View[after.OrderHash]
		if !ok {
			return nil, nil, corrupt("insert", after.OrderHash, "anchor node not found")
		}
		left = strPtr(anchor.Hash)
		right = clonePtr(anchor.Next)
	} else if len(l.View) > 0 {
		head, err := l.head()
		if err != nil {
			return nil, nil, err
		}
		right = strPtr(head.Hash)
	}

	taken := make(map[string]bool, len(tracks))
	inserted := make([]OrderedTrack, 0, len(tracks))
	for _, t := range tracks {
		h := l.freshHash(taken)
		taken[h] = true
		inserted = append(inserted, OrderedTrack{Track: t, OrderHash: h})
	}

	for i, ot := range inserted {
		prev, next := left, right
		if i > 0 {
			prev = strPtr(inserted[i-1].OrderHash)
		}
		if i < len(inserted)-1 {
			next = strPtr(inserted[i+1].OrderHash)
		}
		changes[ot.OrderHash] = FullNode(ot.Node(prev, next))
	}

	if left != nil {
		changes[*left] = &NodePatch{Next: Value(inserted[0].OrderHash)}
	}
	if right != nil {
		changes[*right] = &NodePatch{Previous: Value(inserted[len(inserted)-1].OrderHash)}
	}
	return changes, inserted, nil
}

// DeletePatch builds the changes that unlink track. Deleting a position that
// is not in the view is a corruption error, never a silent no-op.
//
// Removing the last remaining position must be sent as a flush instead; that
// policy belongs to the caller.
func (l *LinkedPlaylist) DeletePatch(track OrderedTrack) (Changes, error) {
	n, ok := l.View[track.OrderHash]
	if !ok {
		return nil, corrupt("delete", track.OrderHash, "node not found")
	}
	changes := Changes{track.OrderHash: nil}
	if n.Previous != nil {
		changes[*n.Previous] = &NodePatch{Next: fieldOf(n.Next)}
	}
	if n.Next != nil {
		changes[*n.Next] = &NodePatch{Previous: fieldOf(n.Previous)}
	}
	return changes, nil
}

// MovePatch relocates track right after the position after (nil moves it to
// the head). A move is a delete plus a reinsert under a fresh order hash.
func (l *LinkedPlaylist) MovePatch(track OrderedTrack, after *OrderedTrack) (Changes, OrderedTrack, error) {
	if after != nil && after.Equal(track) {
		return Changes{}, track, nil
	}
	n, ok := l.View[track.OrderHash]
	if !ok {
		return nil, OrderedTrack{}, corrupt("move", track.OrderHash, "node not found")
	}

	work := l.Clone()
	del, err := work.DeletePatch(track)
	if err != nil {
		return nil, OrderedTrack{}, err
	}
	work.Apply(Patch{Changes: del})

	payload := track.Track
	payload.ID = n.ID
	ins, moved, err := work.InsertPatch([]Track{payload}, after)
	if err != nil {
		return nil, OrderedTrack{}, err
	}
	return del.Merge(ins), moved[0], nil
}

// FlushPatch builds a patch that replaces the whole ordering with tracks.
// An empty tracks slice empties the playlist.
func FlushPatch(tracks []Track) (Patch, []OrderedTrack) {
	empty := New()
	changes, inserted, _ := empty.InsertPatch(tracks, nil)
	return Patch{ShouldFlush: true, Changes: changes}, inserted
}

// Snapshot encodes the current view as a flush patch.
func (l *LinkedPlaylist) Snapshot() Patch {
	changes := make(Changes, len(l.View))
	for hash, n := range l.View {
		changes[hash] = FullNode(n)
	}
	return Patch{ShouldFlush: true, Changes: changes}
}

// Apply merges patch into the view field by field. A flush clears the view
// first; a tombstone removes its key; a known key only gets the fields that
// are set in the update; an unknown key becomes a new node.
func (l *LinkedPlaylist) Apply(patch Patch) {
	if l.View == nil || patch.ShouldFlush {
		l.View = make(map[string]Node, len(patch.Changes))
	}
	for hash, np := range patch.Changes {
		if np == nil {
			delete(l.View, hash)
			continue
		}
		n, ok := l.View[hash]
		if !ok {
			n = Node{}
		}
		np.applyTo(&n)
		n.Hash = hash
		l.View[hash] = n
	}
}
