package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/volkzayaz/RR-sub003/internal/wire"
)

// maxEventBody caps POST /events bodies.
const maxEventBody = 1 << 20

type Config struct {
	// FrontendBaseURL is the only Origin allowed on /ws. Empty allows any.
	FrontendBaseURL string
	// JWTSecret, when set, makes /ws require a session token.
	JWTSecret []byte
}

// Server is the relay: it sequences session commands through redis and fans
// them out to every websocket member of the session.
type Server struct {
	hub      *Hub
	store    *Store
	ctx      context.Context
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	subscribed chan struct{}
}

func NewServer(ctx context.Context, hub *Hub, store *Store, cfg Config, logger zerolog.Logger) *Server {
	s := &Server{
		hub:        hub,
		store:      store,
		ctx:        ctx,
		cfg:        cfg,
		logger:     logger.With().Str("component", "relay").Logger(),
		subscribed: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.FrontendBaseURL == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.cfg.FrontendBaseURL
}

// Router builds the relay's routes behind middlewares.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.With(bodySizeLimit(maxEventBody)).Post("/events", s.handleEvents)
	r.Get("/sessions/{id}", s.handleSession)

	return r
}

// RunRedisSubscriber forwards every session broadcast published by any relay
// instance to the local members of that session.
func (s *Server) RunRedisSubscriber(ctx context.Context) error {
	sub := s.store.rdb.PSubscribe(ctx, sessionPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(s.subscribed)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			session := strings.TrimPrefix(msg.Channel, keyPrefix)
			s.hub.Broadcast(session, []byte(msg.Payload))
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "relay",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}
	if len(s.cfg.JWTSecret) > 0 {
		claims, err := parseSessionToken(tokenFromRequest(r), s.cfg.JWTSecret)
		if err != nil || claims.Session != session {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws upgrade")
		return
	}

	client := &Client{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		session: session,
		logger:  s.logger.With().Str("session", session).Str("remote", r.RemoteAddr).Logger(),
		handle:  s.handleFrame,
	}
	if !s.hub.Register(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleFrame(c *Client, data []byte) {
	env, err := wire.Parse(data)
	if err != nil {
		s.replyError(c, "", err.Error())
		return
	}
	if env.Type == wire.TypeResync {
		s.sendSnapshot(c)
		return
	}
	if !env.Type.Sequenced() {
		s.replyError(c, env.ID, "unsupported message type "+string(env.Type))
		return
	}

	if _, err := s.submit(s.ctx, c.session, env); err != nil {
		if errors.Is(err, ErrRejected) {
			c.logger.Warn().Err(err).Str("origin", env.Origin).Msg("command rejected")
			s.replyError(c, env.ID, err.Error())
			s.sendSnapshot(c)
			return
		}
		if errors.Is(err, errNotBroadcast) {
			// the sender has the command applied; hand it the sequence it
			// would otherwise wait for
			c.logger.Error().Err(err).Msg("broadcast command")
			s.sendSnapshot(c)
			return
		}
		c.logger.Error().Err(err).Msg("submit command")
		s.replyError(c, env.ID, "internal error")
	}
}

// errNotBroadcast reports a command that was committed but could not be
// published. Members miss its sequence number until they resync.
var errNotBroadcast = errors.New("realtime: committed command was not broadcast")

// submit sequences env and publishes it. It returns the assigned sequence
// number, or zero when env was a duplicate.
func (s *Server) submit(ctx context.Context, session string, env wire.Envelope) (uint64, error) {
	if env.ID != "" {
		seen, err := s.store.Seen(ctx, session, env.ID)
		if err != nil {
			return 0, err
		}
		if seen {
			s.logger.Debug().Str("session", session).Str("id", env.ID).Msg("duplicate command dropped")
			return 0, nil
		}
	}
	stamped, err := s.store.Commit(ctx, session, env)
	if err != nil {
		if env.ID != "" {
			if ferr := s.store.Forget(ctx, session, env.ID); ferr != nil {
				s.logger.Warn().Err(ferr).Str("session", session).Msg("release envelope id")
			}
		}
		return 0, err
	}
	if err := s.store.Publish(ctx, stamped); err != nil {
		return stamped.Seq, fmt.Errorf("%w: seq %d: %v", errNotBroadcast, stamped.Seq, err)
	}
	return stamped.Seq, nil
}

func (s *Server) sendSnapshot(c *Client) {
	sess, err := s.store.Load(s.ctx, c.session)
	if err != nil {
		c.logger.Error().Err(err).Msg("load session")
		s.replyError(c, "", "snapshot unavailable")
		return
	}
	env, err := wire.New(wire.TypeSnapshot, "", sess.Snapshot())
	if err != nil {
		c.logger.Error().Err(err).Msg("encode snapshot")
		return
	}
	env.Session = c.session
	env.Seq = sess.Seq
	s.reply(c, env)
}

func (s *Server) replyError(c *Client, refID, msg string) {
	env, err := wire.New(wire.TypeError, "", wire.Error{RefID: refID, Message: msg})
	if err != nil {
		return
	}
	env.Session = c.session
	s.reply(c, env)
}

func (s *Server) reply(c *Client, env wire.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode reply")
		return
	}
	s.hub.SendTo(c, data)
}

// handleEvents lets backend services push session commands, e.g. preview
// times computed server side.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var env wire.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if env.Session == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}
	if !env.Type.Sequenced() {
		writeError(w, http.StatusBadRequest, "unsupported message type")
		return
	}

	seq, err := s.submit(r.Context(), env.Session, env)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("publish event")
		writeError(w, http.StatusInternalServerError, "redis error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "seq": seq})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.Load(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("session", id).Msg("load session")
		writeError(w, http.StatusInternalServerError, "redis error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  id,
		"seq":      sess.Seq,
		"snapshot": sess.Snapshot(),
	})
}
