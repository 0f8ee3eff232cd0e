// Package actor keeps a local player state in sync with the shared session
// channel. Own changes (signed with the session signature) go out; inbound
// commands are applied signed with their sender's signature, so committing
// them never produces outbound traffic.
package actor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/volkzayaz/RR-sub003/internal/player"
	"github.com/volkzayaz/RR-sub003/internal/playlist"
	"github.com/volkzayaz/RR-sub003/internal/wire"
)

const (
	// MasterGrace is how long inbound current-track and track-state commands
	// may be ignored after this client sent one. A peer command is only
	// dropped while the echo of our own command of that kind has not come
	// back yet: the relay sequenced the peer first and ours overrides it.
	// It is a debounce, not a guarantee.
	MasterGrace = 400 * time.Millisecond

	// GapTimeout is how long a missing sequence number is waited for while
	// later envelopes are buffered. Then the relay is asked for a snapshot.
	GapTimeout = time.Second

	// MaxPendingOutOfOrder bounds the reorder buffer. Overflowing it drops
	// the buffer and asks the relay for a snapshot.
	MaxPendingOutOfOrder = 64

	// RelaySignature signs state taken from relay snapshots and from
	// envelopes that carry no origin.
	RelaySignature = "relay"

	changeBuffer = 64
)

type Actor struct {
	store     *player.Store
	rec       *player.Reconciler
	dialer    Dialer
	signature string
	logger    zerolog.Logger

	grace      time.Duration
	gapTimeout time.Duration
	now        func() time.Time
	newBackOff func() backoff.BackOff

	state atomic.Int32

	mu         sync.Mutex
	masterDate time.Time
	unechoed   map[wire.Type]int
}

type Option func(*Actor)

// WithGrace overrides MasterGrace.
func WithGrace(d time.Duration) Option {
	return func(a *Actor) { a.grace = d }
}

// WithGapTimeout overrides GapTimeout.
func WithGapTimeout(d time.Duration) Option {
	return func(a *Actor) { a.gapTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(a *Actor) { a.now = now }
}

// WithBackOff sets the reconnect policy. The factory is called once per Run.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(a *Actor) { a.newBackOff = f }
}

func New(store *player.Store, rec *player.Reconciler, dialer Dialer, signature string, logger zerolog.Logger, opts ...Option) *Actor {
	a := &Actor{
		store:      store,
		rec:        rec,
		dialer:     dialer,
		signature:  signature,
		logger:     logger.With().Str("component", "actor").Str("signature", signature).Logger(),
		grace:      MasterGrace,
		gapTimeout: GapTimeout,
		now:        time.Now,
		newBackOff: defaultBackOff,
		unechoed:   make(map[wire.Type]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// State reports the connection state.
func (a *Actor) State() ConnState {
	return ConnState(a.state.Load())
}

func (a *Actor) setState(s ConnState) {
	if old := ConnState(a.state.Swap(int32(s))); old != s {
		a.logger.Debug().Stringer("from", old).Stringer("to", s).Msg("channel state")
	}
}

// Run connects, serves and reconnects until ctx is done.
func (a *Actor) Run(ctx context.Context) error {
	b := backoff.WithContext(a.newBackOff(), ctx)
	for {
		a.setState(Connecting)
		conn, err := a.dialer.Dial(ctx)
		if err == nil {
			b.Reset()
			a.setState(Connected)
			a.logger.Info().Msg("channel connected")
			err = a.serve(ctx, conn)
			_ = conn.Close()
		}
		a.setState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		a.logger.Warn().Err(err).Dur("retry_in", wait).Msg("channel lost")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// serve runs one connection. Own changes are only observed while connected;
// whatever happened offline is replaced by the snapshot requested here.
func (a *Actor) serve(ctx context.Context, conn Conn) error {
	changes, unsubscribe := a.store.Subscribe(changeBuffer)
	defer unsubscribe()

	if err := a.requestResync(ctx, conn); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// once nobody drains changes, writers must not wait on us
		defer unsubscribe()
		return a.publishLoop(gctx, conn, changes)
	})
	g.Go(func() error {
		return a.receiveLoop(gctx, conn)
	})
	return g.Wait()
}

func (a *Actor) publishLoop(ctx context.Context, conn Conn, changes <-chan player.Change) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return ErrDisconnected
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			if err := a.publish(ctx, conn, ch); err != nil {
				return err
			}
		}
	}
}

func (a *Actor) publish(ctx context.Context, conn Conn, ch player.Change) error {
	if ch.Signature != a.signature {
		return nil
	}
	if ch.Next.NeedsResync && !ch.Prev.NeedsResync {
		if err := a.requestResync(ctx, conn); err != nil {
			return err
		}
	}
	msgs, master, err := a.outbound(ch)
	if err != nil {
		return err
	}
	if master {
		a.mu.Lock()
		a.masterDate = a.now()
		for _, env := range msgs {
			if isMaster(env.Type) {
				a.unechoed[env.Type]++
			}
		}
		a.mu.Unlock()
	}
	for _, env := range msgs {
		if err := conn.Send(ctx, env); err != nil {
			return fmt.Errorf("send %s: %w", env.Type, err)
		}
	}
	return nil
}

// outbound turns one own change into the commands peers need to replay it.
// master is true when a current-track or track-state command is among them.
func (a *Actor) outbound(ch player.Change) (msgs []wire.Envelope, master bool, err error) {
	if ch.Signature != a.signature {
		return nil, false, nil
	}
	prev, next := ch.Prev, ch.Next

	add := func(t wire.Type, payload any) {
		if err != nil {
			return
		}
		var env wire.Envelope
		env, err = wire.New(t, a.signature, payload)
		msgs = append(msgs, env)
	}

	if next.LastPatch != nil && next.LastPatch != prev.LastPatch {
		// payloads first so peers never fetch what we already have
		if tracks := patchTracks(next.LastPatch.Patch, &next.Tracks); len(tracks) > 0 {
			add(wire.TypeTracks, wire.Tracks{Tracks: tracks})
		}
		add(wire.TypePlaylistPatch, next.LastPatch.Patch)
	}

	currentChanged := !sameHash(prev.CurrentHash(), next.CurrentHash())
	if currentChanged {
		add(wire.TypeCurrentTrack, wire.CurrentTrack{OrderHash: next.CurrentHash()})
		master = true
	}
	if next.CurrentItem != nil && (currentChanged || prev.CurrentItem.State != next.CurrentItem.State) {
		add(wire.TypeTrackState, wire.TrackState{
			Progress:      next.CurrentItem.State.Progress,
			IsPlaying:     next.CurrentItem.State.IsPlaying,
			SignatureHash: a.signature,
		})
		master = true
	}

	if prev.IsBlocked != next.IsBlocked {
		add(wire.TypeBlockState, wire.BlockState{IsBlocked: next.IsBlocked})
	}
	if err != nil {
		return nil, false, err
	}
	return msgs, master, nil
}

func (a *Actor) receiveLoop(ctx context.Context, conn Conn) error {
	seq := newSequencer()

	// gap fires when seq.last+1 has been missing for gapTimeout
	var (
		gap      *time.Timer
		gapC     <-chan time.Time
		gapSince uint64
	)
	stopGap := func() {
		if gap != nil {
			gap.Stop()
		}
		gap, gapC = nil, nil
	}
	defer stopGap()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return ErrDisconnected
		case env, ok := <-conn.Inbound():
			if !ok {
				return ErrDisconnected
			}
			if err := a.receive(ctx, conn, seq, env); err != nil {
				return err
			}
		case <-gapC:
			gap, gapC = nil, nil
			if seq.synced && len(seq.pending) > 0 {
				a.logger.Warn().Uint64("last", seq.last).Int("buffered", len(seq.pending)).Msg("sequence gap")
				if err := a.resync(ctx, conn, seq); err != nil {
					return err
				}
			}
		}

		switch {
		case !seq.synced || len(seq.pending) == 0:
			stopGap()
		case gap == nil || gapSince != seq.last:
			stopGap()
			gap = time.NewTimer(a.gapTimeout)
			gapC, gapSince = gap.C, seq.last
		}
	}
}

func (a *Actor) receive(ctx context.Context, conn Conn, seq *sequencer, env wire.Envelope) error {
	switch env.Type {
	case wire.TypeSnapshot:
		a.applySnapshot(env)
		seq.reset(env.Seq)
		return a.drain(ctx, conn, seq)
	case wire.TypeError:
		var e wire.Error
		if err := env.Decode(&e); err == nil {
			a.logger.Warn().Str("ref", e.RefID).Str("reason", e.Message).Msg("relay rejected command")
		}
		return nil
	}
	if !env.Type.Sequenced() {
		return nil
	}

	if seq.synced && env.Seq <= seq.last {
		a.logger.Debug().Uint64("seq", env.Seq).Msg("duplicate envelope dropped")
		return nil
	}
	if seq.synced && env.Seq == seq.last+1 {
		seq.last = env.Seq
		if a.handle(env) {
			return a.resync(ctx, conn, seq)
		}
		return a.drain(ctx, conn, seq)
	}

	if len(seq.pending) >= MaxPendingOutOfOrder {
		a.logger.Warn().Uint64("last", seq.last).Uint64("seq", env.Seq).Msg("reorder buffer overflow")
		return a.resync(ctx, conn, seq)
	}
	seq.pending[env.Seq] = env
	return nil
}

// drain applies buffered envelopes that are now in order.
func (a *Actor) drain(ctx context.Context, conn Conn, seq *sequencer) error {
	for {
		env, ok := seq.pending[seq.last+1]
		if !ok {
			return nil
		}
		delete(seq.pending, env.Seq)
		seq.last = env.Seq
		if a.handle(env) {
			return a.resync(ctx, conn, seq)
		}
	}
}

func (a *Actor) resync(ctx context.Context, conn Conn, seq *sequencer) error {
	seq.synced = false
	clear(seq.pending)
	return a.requestResync(ctx, conn)
}

func (a *Actor) requestResync(ctx context.Context, conn Conn) error {
	env, err := wire.New(wire.TypeResync, a.signature, nil)
	if err != nil {
		return err
	}
	a.logger.Info().Msg("requesting session snapshot")
	if err := conn.Send(ctx, env); err != nil {
		return fmt.Errorf("send resync: %w", err)
	}
	return nil
}

// handle applies one in-order envelope. It reports whether the local view
// diverged and needs a snapshot.
func (a *Actor) handle(env wire.Envelope) bool {
	if env.Origin == a.signature {
		// echo of a command we already applied locally
		a.echoed(env.Type)
		return false
	}
	origin := env.Origin
	if origin == "" {
		origin = RelaySignature
	}
	log := a.logger.With().Str("type", string(env.Type)).Str("origin", origin).Uint64("seq", env.Seq).Logger()

	var err error
	switch env.Type {
	case wire.TypeTracks:
		var p wire.Tracks
		if err = env.Decode(&p); err == nil {
			_, err = a.store.Dispatch(player.AddTracks(origin, p.Tracks))
		}
	case wire.TypePlaylistPatch:
		var p wire.PlaylistPatch
		if err = env.Decode(&p); err == nil {
			_, err = a.rec.Apply(p, nil, origin)
		}
	case wire.TypeCurrentTrack:
		if a.inGrace(env.Type) {
			log.Debug().Msg("ignored inside master grace window")
			return false
		}
		var p wire.CurrentTrack
		if err = env.Decode(&p); err == nil {
			_, err = a.store.Dispatch(player.SetCurrentItem(origin, p.OrderHash))
		}
	case wire.TypeTrackState:
		if a.inGrace(env.Type) {
			log.Debug().Msg("ignored inside master grace window")
			return false
		}
		var p wire.TrackState
		if err = env.Decode(&p); err == nil {
			if env.Origin == "" && p.SignatureHash != "" {
				origin = p.SignatureHash
			}
			_, err = a.store.Dispatch(player.SetTrackState(origin, player.TrackState{Progress: p.Progress, IsPlaying: p.IsPlaying}))
		}
	case wire.TypeBlockState:
		var p wire.BlockState
		if err = env.Decode(&p); err == nil {
			_, err = a.store.Dispatch(player.SetBlocked(origin, p.IsBlocked))
		}
	case wire.TypePreviewTimes:
		var p wire.PreviewTimes
		if err = env.Decode(&p); err == nil {
			_, err = a.store.Dispatch(player.SetPreviewTimes(origin, p.Mapping))
		}
	}

	if err == nil {
		return false
	}
	if errors.Is(err, player.ErrResyncRequired) || errors.Is(err, player.ErrUnknownPosition) {
		log.Warn().Err(err).Msg("local view diverged")
		return true
	}
	log.Error().Err(err).Msg("apply inbound command")
	return false
}

// applySnapshot replaces the local session with the relay's.
func (a *Actor) applySnapshot(env wire.Envelope) {
	var snap wire.Snapshot
	if err := env.Decode(&snap); err != nil {
		a.logger.Error().Err(err).Msg("decode snapshot")
		return
	}
	patch := snap.Playlist
	patch.ShouldFlush = true
	if _, err := a.rec.Apply(patch, snap.Tracks, RelaySignature); err != nil {
		a.logger.Error().Err(err).Uint64("seq", env.Seq).Msg("apply snapshot")
		return
	}

	actions := make([]player.Action, 0, 4)
	if snap.Now != nil {
		hash := snap.Now.OrderHash
		actions = append(actions,
			player.SetCurrentItem(RelaySignature, &hash),
			player.SetTrackState(RelaySignature, player.TrackState{Progress: snap.Now.Progress, IsPlaying: snap.Now.IsPlaying}),
		)
	}
	actions = append(actions,
		player.SetBlocked(RelaySignature, snap.IsBlocked),
		player.SetPreviewTimes(RelaySignature, snap.PreviewTimes),
	)
	for _, act := range actions {
		if _, err := a.store.Dispatch(act); err != nil {
			a.logger.Error().Err(err).Str("action", act.Name).Msg("apply snapshot")
		}
	}
	a.logger.Info().Uint64("seq", env.Seq).Int("tracks", len(snap.Playlist.Changes)).Msg("snapshot applied")
}

// inGrace reports whether an inbound command of type t is superseded by one
// of ours the relay has not sequenced yet.
func (a *Actor) inGrace(t wire.Type) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.masterDate.IsZero() || a.now().Sub(a.masterDate) >= a.grace {
		clear(a.unechoed)
		return false
	}
	if t == wire.TypeCurrentTrack {
		return a.unechoed[wire.TypeCurrentTrack] > 0
	}
	// a new current track also resets playback state
	return a.unechoed[wire.TypeCurrentTrack]+a.unechoed[wire.TypeTrackState] > 0
}

func (a *Actor) echoed(t wire.Type) {
	if !isMaster(t) {
		return
	}
	a.mu.Lock()
	if a.unechoed[t] > 0 {
		a.unechoed[t]--
	}
	a.mu.Unlock()
}

func isMaster(t wire.Type) bool {
	return t == wire.TypeCurrentTrack || t == wire.TypeTrackState
}

// sequencer tracks the relay sequence of one connection. It is only touched
// by the receive loop.
type sequencer struct {
	last    uint64
	synced  bool
	pending map[uint64]wire.Envelope
}

func newSequencer() *sequencer {
	return &sequencer{pending: make(map[uint64]wire.Envelope)}
}

func (s *sequencer) reset(last uint64) {
	s.last = last
	s.synced = true
	for n := range s.pending {
		if n <= last {
			delete(s.pending, n)
		}
	}
}

// patchTracks collects the cached payloads a patch refers to.
func patchTracks(p playlist.Patch, l *playlist.LinkedPlaylist) []playlist.Track {
	seen := make(map[string]bool, len(p.Changes))
	var out []playlist.Track
	for _, np := range p.Changes {
		if np == nil || np.ID.Value == nil || seen[*np.ID.Value] {
			continue
		}
		seen[*np.ID.Value] = true
		if t, ok := l.Dump[*np.ID.Value]; ok {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(x, y playlist.Track) int { return cmp.Compare(x.ID, y.ID) })
	return out
}

func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
