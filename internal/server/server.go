// Package server exposes a Structure over a small read-only JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/Unlink/database/internal/errs"
	"github.com/Unlink/database/internal/logger"
	"github.com/Unlink/database/internal/structure"
)

// Structure is the query surface the handlers need; *structure.Structure
// satisfies it.
type Structure interface {
	Tables(ctx context.Context) ([]structure.TableSummary, error)
	PrimaryKey(ctx context.Context, table string) (structure.PrimaryKey, error)
	PrimaryKeySequence(ctx context.Context, table string) (string, bool, error)
	BelongsToReferences(ctx context.Context, table string) ([]structure.ColumnRef, error)
	BelongsToReference(ctx context.Context, table, column string) (string, bool, error)
	HasManyReferences(ctx context.Context, table string) ([]structure.TableRef, error)
	HasManyReference(ctx context.Context, table, target string) ([]string, bool, error)
	Rebuild(ctx context.Context) error
	Invalidate(ctx context.Context) error
}

// Error codes returned in the error envelope.
const (
	ErrTableNotFound   = "TABLE_NOT_FOUND"
	ErrDatabaseError   = "DATABASE_ERROR"
	ErrDatabaseTimeout = "DATABASE_TIMEOUT"
	ErrInternal        = "INTERNAL_ERROR"
)

type Server struct {
	structure Structure
	log       *logger.Logger
	router    chi.Router
}

func New(s Structure, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	srv := &Server{structure: s, log: log}
	srv.router = srv.routes()
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/tables", s.handleTables)
	r.Route("/tables/{table}", func(r chi.Router) {
		r.Get("/primary-key", s.handlePrimaryKey)
		r.Get("/sequence", s.handleSequence)
		r.Get("/belongs-to", s.handleBelongsTo)
		r.Get("/has-many", s.handleHasMany)
	})
	r.Post("/rebuild", s.handleRebuild)
	r.Delete("/cache", s.handleInvalidate)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", addr).Logger().Info("http server listening")
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Request().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// --- handlers ---

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.structure.Tables(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tables)
}

type primaryKeyData struct {
	Table   string               `json:"table"`
	Primary structure.PrimaryKey `json:"primary"`
}

func (s *Server) handlePrimaryKey(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	pk, err := s.structure.PrimaryKey(r.Context(), table)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, primaryKeyData{Table: table, Primary: pk})
}

type sequenceData struct {
	Table    string  `json:"table"`
	Sequence *string `json:"sequence"`
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	seq, ok, err := s.structure.PrimaryKeySequence(r.Context(), table)
	if err != nil {
		s.respondError(w, err)
		return
	}
	data := sequenceData{Table: table}
	if ok {
		data.Sequence = &seq
	}
	respondJSON(w, http.StatusOK, data)
}

type belongsToData struct {
	Table      string                `json:"table"`
	Column     string                `json:"column,omitempty"`
	References []structure.ColumnRef `json:"references,omitempty"`
	Referenced *string               `json:"referenced,omitempty"`
}

// handleBelongsTo lists every outgoing reference, or only the one of
// ?column= when given.
func (s *Server) handleBelongsTo(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	column := r.URL.Query().Get("column")

	if column == "" {
		refs, err := s.structure.BelongsToReferences(r.Context(), table)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if refs == nil {
			refs = []structure.ColumnRef{}
		}
		respondJSON(w, http.StatusOK, belongsToData{Table: table, References: refs})
		return
	}

	ref, ok, err := s.structure.BelongsToReference(r.Context(), table, column)
	if err != nil {
		s.respondError(w, err)
		return
	}
	data := belongsToData{Table: table, Column: column}
	if ok {
		data.Referenced = &ref
	}
	respondJSON(w, http.StatusOK, data)
}

type hasManyData struct {
	Table      string               `json:"table"`
	References []structure.TableRef `json:"references"`
}

type hasManyTargetData struct {
	Table   string   `json:"table"`
	Target  string   `json:"target"`
	Columns []string `json:"columns"`
}

// handleHasMany lists every incoming reference, or only the columns of
// ?target= when given.
func (s *Server) handleHasMany(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	target := r.URL.Query().Get("target")

	if target == "" {
		refs, err := s.structure.HasManyReferences(r.Context(), table)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if refs == nil {
			refs = []structure.TableRef{}
		}
		respondJSON(w, http.StatusOK, hasManyData{Table: table, References: refs})
		return
	}

	cols, _, err := s.structure.HasManyReference(r.Context(), table, target)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if cols == nil {
		cols = []string{}
	}
	respondJSON(w, http.StatusOK, hasManyTargetData{Table: table, Target: target, Columns: cols})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.structure.Rebuild(r.Context()); err != nil {
		s.respondError(w, err)
		return
	}
	tables, err := s.structure.Tables(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"tables": len(tables)})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := s.structure.Invalidate(r.Context()); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- responses ---

type apiResponse[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON[T any](w http.ResponseWriter, status int, data T) {
	writeJSON(w, status, apiResponse[T]{Success: true, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, code, msg := http.StatusInternalServerError, ErrInternal, "internal error"
	switch {
	case errs.IsTableNotFound(err):
		var e *errs.Error
		errors.As(err, &e)
		status, code, msg = http.StatusNotFound, ErrTableNotFound, e.Message
	case errs.IsTimeout(err):
		status, code, msg = http.StatusGatewayTimeout, ErrDatabaseTimeout, "database did not answer in time"
	case errs.KindOf(err) != errs.ErrKindUnknown:
		status, code, msg = http.StatusBadGateway, ErrDatabaseError, "database metadata unavailable"
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]any{"code": code})
	}
	writeJSON(w, status, errorResponse{Error: &apiError{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
