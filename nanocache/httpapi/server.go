// Package httpapi exposes a types.Backend over REST and provides the matching
// client, so a cache can sit on the far side of a network boundary.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/arthur-debert/nanocache/types"
	"github.com/gorilla/mux"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// slowRequest is the duration above which a request is logged as a warning
const slowRequest = 500 * time.Millisecond

type server struct {
	backend types.Backend
	logger  *slog.Logger
}

// errorEnvelope is the body of every failed response
type errorEnvelope struct {
	Error *types.APIError `json:"error"`
}

// NewRouter routes the REST surface to backend
func NewRouter(backend types.Backend, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &server{backend: backend, logger: logger}

	r := mux.NewRouter()
	r.Use(s.requestLoggerMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	r.HandleFunc("/collections/{collection}/entities", s.fetchAllHandler).Methods("GET")
	r.HandleFunc("/collections/{collection}/entities", s.createHandler).Methods("POST")
	r.HandleFunc("/collections/{collection}/entities/{id}/children", s.fetchChildrenHandler).Methods("GET")
	r.HandleFunc("/collections/{collection}/entities/{id}", s.updateHandler).Methods("PATCH")
	r.HandleFunc("/collections/{collection}/entities/{id}", s.deleteHandler).Methods("DELETE")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, &types.APIError{Status: http.StatusNotFound, Code: types.CodeNotFound, Message: "no route for " + r.URL.Path})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, &types.APIError{Status: http.StatusMethodNotAllowed, Code: types.CodeInvalid, Message: r.Method + " not allowed on " + r.URL.Path})
	})
	return r
}

// Serve runs handler on addr until ctx is canceled, then shuts down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLoggerMiddleware logs method, path, status and duration
func (s *server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		level := slog.LevelInfo
		switch {
		case rw.statusCode >= 500:
			level = slog.LevelError
		case rw.statusCode >= 400 || duration > slowRequest:
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) fetchAllHandler(w http.ResponseWriter, r *http.Request) {
	entities, err := s.backend.FetchAll(r.Context(), mux.Vars(r)["collection"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, entities)
}

func (s *server) fetchChildrenHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entities, err := s.backend.FetchChildren(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, entities)
}

func (s *server) createHandler(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.backend.Create(r.Context(), mux.Vars(r)["collection"], req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, created)
}

func (s *server) updateHandler(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	updated, err := s.backend.Update(r.Context(), vars["collection"], vars["id"], req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

func (s *server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.backend.Delete(r.Context(), vars["collection"], vars["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps err onto a status and logs unexpected failures
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := types.NewAPIError(err)
	if apiErr.Status >= 500 {
		s.logger.Error("backend failure", "path", r.URL.Path, "error", err)
	}
	jsonError(w, apiErr)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %v: %w", err, types.ErrInvalid)
	}
	return nil
}

// jsonResponse sends a JSON response
func jsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError sends the error envelope
func jsonError(w http.ResponseWriter, apiErr *types.APIError) {
	jsonResponse(w, apiErr.Status, errorEnvelope{Error: apiErr})
}
