// Package daemon keeps a reconciler alive between the export request and the
// callback Things sends back, and exposes it over local HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pwflint/obsidian-things-export/internal/export"
	"github.com/pwflint/obsidian-things-export/internal/things"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Error kinds carried in error responses.
const (
	kindBadRequest       = "bad_request"
	kindNoTarget         = "no_target"
	kindNotFound         = "not_found"
	kindUnknownOperation = "unknown_operation"
	kindBadCallback      = "bad_callback"
	kindDispatch         = "dispatch"
	kindInternal         = "internal"
)

type ExportRequest struct {
	Path string `json:"path"`
}

type CallbackRequest struct {
	URL string `json:"url"`
}

type PendingResponse struct {
	Operations []export.Operation `json:"operations"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type Server struct {
	rec    *export.Reconciler
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewServer(rec *export.Reconciler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{rec: rec, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /export", s.handleExport)
	s.mux.HandleFunc("POST /callback", s.handleCallback)
	s.mux.HandleFunc("GET /pending", s.handlePending)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.requestLogger(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		case <-done:
		}
	}()
	defer close(done)

	s.logger.Info("listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.rec.Export(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.rec.HandleCallback(r.Context(), req.URL); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PendingResponse{Operations: s.rec.Pending()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Kind: kindBadRequest})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", w.Header().Get(requestIDHeader), "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, export.ErrNoActiveTarget):
		return http.StatusBadRequest, kindNoTarget
	case errors.Is(err, export.ErrDocumentNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, export.ErrUnknownOperation):
		return http.StatusNotFound, kindUnknownOperation
	case errors.Is(err, things.ErrUnknownCallback):
		return http.StatusBadRequest, kindBadCallback
	case errors.Is(err, things.ErrDispatch):
		return http.StatusBadGateway, kindDispatch
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
