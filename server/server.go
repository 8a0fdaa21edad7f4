// Package server exposes the persona and feed stores over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/robertmeta/inspoflow/backup"
	"github.com/robertmeta/inspoflow/config"
	"github.com/robertmeta/inspoflow/feed"
	"github.com/robertmeta/inspoflow/feedcontent"
	"github.com/robertmeta/inspoflow/generate"
	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/persona"
)

// Polisher rewrites persona text fields.
type Polisher interface {
	Polish(ctx context.Context, text string, field generate.Field) string
}

// Server is the HTTP front end.
type Server struct {
	personas  *persona.Store
	feed      *feedcontent.Store
	batcher   *generate.Batcher
	polisher  Polisher
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
	router    chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithBatcher enables generation and conversation endpoints.
func WithBatcher(b *generate.Batcher) Option {
	return func(s *Server) { s.batcher = b }
}

// WithPolisher enables the persona polish endpoint.
func WithPolisher(p Polisher) Option {
	return func(s *Server) { s.polisher = p }
}

// WithBatchSize sets the default number of items per generate request.
func WithBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new server.
func New(personas *persona.Store, items *feedcontent.Store, opts ...Option) *Server {
	s := &Server{
		personas:  personas,
		feed:      items,
		batchSize: 5,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/feed.rss", s.handleRSS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/personas", func(r chi.Router) {
			r.Get("/", s.handleListPersonas)
			r.Post("/", s.handleAddPersona)
			r.Post("/polish", s.handlePolish)
			r.Get("/{id}", s.handleGetPersona)
			r.Put("/{id}", s.handleUpdatePersona)
			r.Delete("/{id}", s.handleDeletePersona)
		})
		r.Route("/feed", func(r chi.Router) {
			r.Get("/", s.handleListFeed)
			r.Get("/saved", s.handleSaved)
			r.Post("/generate", s.handleGenerate)
			r.Get("/{id}", s.handleGetItem)
			r.Post("/{id}/like", s.handleLike)
			r.Post("/{id}/save", s.handleSave)
			r.Post("/{id}/continue", s.handleContinue)
		})
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Persona Handlers ---

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.personas.List())
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, ok := s.personas.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, persona.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddPersona(w http.ResponseWriter, r *http.Request) {
	var data model.PersonaData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	candidate := data.WithID("")
	if err := candidate.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.personas.Add(data))
}

func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	var p model.Persona
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	p.ID = chi.URLParam(r, "id")
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.personas.Update(p) {
		writeError(w, http.StatusNotFound, persona.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p.Clone())
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.personas.Delete(id) {
		writeError(w, http.StatusNotFound, persona.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "id": id})
}

func (s *Server) handlePolish(w http.ResponseWriter, r *http.Request) {
	if s.polisher == nil {
		writeError(w, http.StatusServiceUnavailable, config.ErrMissingAPIKey)
		return
	}
	var req struct {
		Text  string `json:"text"`
		Field string `json:"field"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	field, err := generate.ParseField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Blank text is returned unchanged without a remote call.
	text := req.Text
	if strings.TrimSpace(text) != "" {
		text = s.polisher.Polish(r.Context(), text, field)
	}
	writeJSON(w, http.StatusOK, map[string]string{"field": string(field), "text": text})
}

// --- Feed Handlers ---

func (s *Server) handleListFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.Search(r.URL.Query().Get("q")))
}

func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.Saved())
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.feed.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, feedcontent.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.batcher == nil {
		writeError(w, http.StatusServiceUnavailable, config.ErrMissingAPIKey)
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	// An empty body asks for the default batch size.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Count <= 0 {
		req.Count = s.batchSize
	}

	res := s.batcher.Generate(r.Context(), req.Count)
	items := make([]model.FeedItem, 0, len(res.IDs))
	for _, id := range res.IDs {
		if item, ok := s.feed.Get(id); ok {
			items = append(items, item)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ids":    res.IDs,
		"failed": res.Failed,
		"items":  items,
	})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	liked, ok := s.feed.ToggleLike(id)
	if !ok {
		writeError(w, http.StatusNotFound, feedcontent.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "isLiked": liked})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	saved, ok := s.feed.ToggleSave(id)
	if !ok {
		writeError(w, http.StatusNotFound, feedcontent.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "isSaved": saved})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	if s.batcher == nil {
		writeError(w, http.StatusServiceUnavailable, config.ErrMissingAPIKey)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}

	item, err := s.batcher.Continue(r.Context(), chi.URLParam(r, "id"), req.Message)
	switch {
	case errors.Is(err, feedcontent.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, generate.ErrStillLoading):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, item)
	}
}

// --- Backup Handlers ---

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backup.FileName(now)))
	if err := backup.Export(w, s.personas.List(), s.feed.All(), now); err != nil {
		s.logger.Error("export failed", zap.Error(err))
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, err := backup.Parse(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := backup.Apply(doc, s.personas, s.feed)
	s.logger.Info("import applied",
		zap.Int("personas_added", res.PersonasAdded),
		zap.Int("personas_updated", res.PersonasUpdated),
		zap.Int("items_added", res.ItemsAdded),
		zap.Int("items_skipped", res.ItemsSkipped))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	title := "InspoFlow saved"
	items := s.feed.Saved()
	if r.URL.Query().Get("all") != "" {
		title = "InspoFlow"
		items = s.feed.All()
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if err := feed.Render(w, title, items, s.now()); err != nil {
		s.logger.Error("rss render failed", zap.Error(err))
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
