// Package server exposes a Session as a JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/checkpoint"
	"github.com/sells-group/vcard-normalizer/internal/config"
	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
	"github.com/sells-group/vcard-normalizer/internal/session"
	"github.com/sells-group/vcard-normalizer/internal/store"
)

// Server routes HTTP requests to the session.
type Server struct {
	// ctx outlives individual requests; background runs use it.
	ctx     context.Context
	session *session.Session
	store   store.Store
	cfg     *config.Config
	now     func() time.Time
}

// New creates a Server. Background processing started through the API is
// bound to ctx rather than to the request that started it.
func New(ctx context.Context, sess *session.Session, st store.Store, cfg *config.Config) *Server {
	if st == nil {
		st = store.Nop{}
	}
	return &Server{ctx: ctx, session: sess, store: st, cfg: cfg, now: time.Now}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/process", s.handleProcess)
		r.Post("/export", s.handleExport)
		r.Get("/checkpoint", s.handleCheckpoint)
		r.Get("/birthdays", s.handleBirthdays)
		r.Post("/uids/reissue", s.handleReissueUIDs)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", s.handleCards)
			r.Post("/", s.handleAddCard)
			r.Post("/merge", s.handleMergeCards)
			r.Route("/{idx}", func(r chi.Router) {
				r.Get("/", s.handleCard)
				r.Patch("/", s.handleUpdateCard)
				r.Delete("/", s.handleDeleteCard)
				r.Post("/link", s.handleLink)
				r.Delete("/link/{uid}", s.handleUnlink)
			})
		})
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleProcess(w http.ResponseWriter, _ *http.Request) {
	set, err := ingest.Discover(s.cfg.Workspace.InputDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(set.Sources) == 0 {
		set.Close() //nolint:errcheck
		writeError(w, http.StatusUnprocessableEntity, pipeline.ErrNoInput)
		return
	}

	opts := pipeline.OptionsFromConfig(s.cfg)
	opts.Mode = model.RunModeServe
	if err := s.session.StartProcess(s.ctx, set, opts); err != nil {
		set.Close() //nolint:errcheck
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"sources": set.Labels(),
	})
}

type exportRequest struct {
	Categories []string `json:"categories"`
	Version    string   `json:"version"`
	CSV        bool     `json:"csv"`
	XLSX       bool     `json:"xlsx"`
	Individual bool     `json:"individual"`
	Changelog  bool     `json:"changelog"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	version := req.Version
	if version == "" {
		version = s.cfg.Pipeline.VCardVersion
	}

	res, err := s.session.Export(r.Context(), pipeline.ExportOptions{
		Dir:        s.cfg.Workspace.OutputDir,
		Owner:      s.cfg.OwnerName,
		Version:    version,
		Categories: req.Categories,
		CSV:        req.CSV,
		XLSX:       req.XLSX,
		Individual: req.Individual,
		Changelog:  req.Changelog,
		Now:        s.now(),
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, _ *http.Request) {
	meta := checkpoint.Info(s.cfg.Workspace.WorkDir)
	if meta == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no checkpoint"})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleBirthdays(w http.ResponseWriter, r *http.Request) {
	events := s.session.Birthdays(r.URL.Query()["category"], s.now())
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "total": len(events)})
}

func (s *Server) handleReissueUIDs(w http.ResponseWriter, _ *http.Request) {
	replaced, assigned, err := s.session.ReissueUIDs()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"replaced": replaced, "assigned": assigned})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Mode:   model.RunMode(q.Get("mode")),
		Limit:  queryInt(q.Get("limit"), 20),
		Offset: queryInt(q.Get("offset"), 0),
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := s.session.Cards(session.CardQuery{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Page:     queryInt(q.Get("page"), 1),
		PerPage:  queryInt(q.Get("per_page"), 0),
	})
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	idx, ok := cardIndex(w, r)
	if !ok {
		return
	}
	c, err := s.session.Card(idx)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAddCard(w http.ResponseWriter, r *http.Request) {
	var c model.Contact
	if !decodeBody(w, r, &c) {
		return
	}
	idx, err := s.session.AddCard(&c)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"index": idx})
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	idx, ok := cardIndex(w, r)
	if !ok {
		return
	}
	var u session.CardUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	c, err := s.session.UpdateCard(idx, u)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	idx, ok := cardIndex(w, r)
	if !ok {
		return
	}
	removed, err := s.session.DeleteCard(idx)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": removed.Label()})
}

func (s *Server) handleMergeCards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Indices []int `json:"indices"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	pos, merged, err := s.session.MergeCards(req.Indices)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": pos, "contact": merged})
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	idx, ok := cardIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		To   int    `json:"to"`
		Type string `json:"type"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.session.Link(idx, req.To, req.Type); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	idx, ok := cardIndex(w, r)
	if !ok {
		return
	}
	if err := s.session.Unlink(idx, chi.URLParam(r, "uid")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// helpers

func cardIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid card index"))
		return 0, false
	}
	return idx, true
}

func queryInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return false
	}
	return true
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, session.ErrIndex), errors.Is(err, session.ErrUnknownUID):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}
