// Package web exposes the catalog over a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"eventsched/internal/auth"
	"eventsched/internal/catalog"
	"eventsched/internal/config"
	"eventsched/internal/ics"
	"eventsched/internal/jobs"
	appLog "eventsched/internal/log"
	"eventsched/internal/model"
	"eventsched/internal/store"
)

// Server provides the HTTP API over a catalog.
type Server struct {
	cat    *catalog.Catalog
	cfg    *config.Config
	loc    *time.Location
	backup *jobs.Backup
	now    func() time.Time
	router chi.Router
}

// NewServer constructs a Server. Times without an explicit offset are
// read in loc.
func NewServer(cat *catalog.Catalog, cfg *config.Config, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cat:    cat,
		cfg:    cfg,
		loc:    loc,
		backup: jobs.NewBackup(cat, cfg.Backup.Dir),
		now:    time.Now,
		router: chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	if s.cfg.BasicAuth.Enabled() {
		r.Use(auth.BasicAuth("eventsched", s.cfg.BasicAuth.Username, s.cfg.BasicAuth.PasswordHash, "/health"))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Post("/", s.handleCreateEvent)
			r.Post("/recurring", s.handleCreateRecurring)
			r.Get("/{id}", s.handleGetEvent)
			r.Put("/{id}", s.handleUpdateEvent)
			r.Delete("/{id}", s.handleDeleteEvent)
			r.Get("/{id}/recurrence", s.handleGetRecurrence)
			r.Post("/{id}/recurrence", s.handleGenerateRecurrence)
		})
		r.Get("/recurrences", s.handleListRecurrences)
		r.Get("/search", s.handleSearch)
		r.Get("/conflicts", s.handleConflicts)
		r.Get("/upcoming", s.handleUpcoming)
		r.Post("/backup", s.handleBackup)
		r.Post("/restore", s.handleRestore)
		r.Get("/export.ics", s.handleExport)
		r.Post("/import", s.handleImport)
	})
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr, "basic_auth", s.cfg.BasicAuth.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger is a structured access log carrying chi's request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeErr maps domain errors onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrParse):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		appLog.Error("api: internal error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// markPersist flags a response whose mutation is held in memory only.
func (s *Server) markPersist(w http.ResponseWriter) {
	if err := s.cat.PersistErr(); err != nil {
		w.Header().Set("X-Persist-Error", err.Error())
	}
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parseTime accepts RFC 3339 or the catalog's own local date-time text.
func (s *Server) parseTime(name, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New(name + " is required")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(s.loc), nil
	}
	t, err := store.ParseDateTime(v, s.loc)
	if err != nil {
		return time.Time{}, errors.New(name + ": " + err.Error())
	}
	return t, nil
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, errors.New("id must be an integer")
	}
	return id, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Compile-time check that the catalog satisfies the import target.
var _ ics.Importer = (*catalog.Catalog)(nil)
