package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

const (
	maxIDsPerRequest = 200
	maxUpsertBody    = 1 << 20
)

// TracksResponse is the body of GET /tracks.
type TracksResponse struct {
	Tracks []playlist.Track `json:"tracks"`
}

// UpsertRequest is the body of PUT /tracks.
type UpsertRequest struct {
	Tracks []playlist.Track `json:"tracks"`
}

type Server struct {
	svc    *Service
	logger zerolog.Logger
}

func NewServer(svc *Service, logger zerolog.Logger) *Server {
	return &Server{
		svc:    svc,
		logger: logger.With().Str("component", "catalog-http").Logger(),
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/tracks", s.handleGetTracks)
	r.With(bodySizeLimit(maxUpsertBody)).Put("/tracks", s.handlePutTracks)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "catalog",
	})
}

func (s *Server) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if len(ids) > maxIDsPerRequest {
		writeError(w, http.StatusBadRequest, "too many ids")
		return
	}

	tracks, err := s.svc.Tracks(r.Context(), ids)
	if err != nil {
		s.logger.Error().Err(err).Int("count", len(ids)).Msg("get tracks")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, TracksResponse{Tracks: tracks})
}

func (s *Server) handlePutTracks(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Tracks) == 0 {
		writeError(w, http.StatusBadRequest, "tracks is required")
		return
	}

	if err := s.svc.Upsert(r.Context(), req.Tracks); err != nil {
		if errors.Is(err, ErrInvalidTrack) {
			writeError(w, http.StatusBadRequest, "every track needs an id and a title")
			return
		}
		s.logger.Error().Err(err).Msg("upsert tracks")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(req.Tracks)})
}
