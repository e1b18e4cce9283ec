// Package server exposes the upload/analyze/chat HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/dataloom/internal/ai"
	"github.com/KaramelBytes/dataloom/internal/analysis"
	"github.com/KaramelBytes/dataloom/internal/chat"
	"github.com/KaramelBytes/dataloom/internal/dataset"
	"github.com/KaramelBytes/dataloom/internal/metadata"
	"github.com/KaramelBytes/dataloom/internal/storage"
)

// maxUploadBytes bounds in-memory CSV uploads.
const maxUploadBytes = 64 << 20

// ObjectStore is the slice of the storage client the server needs.
type ObjectStore interface {
	Upload(ctx context.Context, r io.Reader, size int64, originalFilename string) (string, error)
	UploadCleaned(ctx context.Context, r io.Reader, size int64, originalKey string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Asker answers dataset questions; implemented by chat.Service.
type Asker interface {
	Ask(ctx context.Context, result *analysis.Result, question string, history []chat.Turn) (*chat.Reply, error)
}

// Server wires the stores and services behind the HTTP API.
type Server struct {
	objects       ObjectStore
	meta          *metadata.Store
	chat          Asker
	analysisOpts  analysis.Options
	presignExpiry time.Duration
	log           *zap.Logger
	mux           *http.ServeMux
}

// Options configures a Server.
type Options struct {
	AnalysisOptions analysis.Options
	PresignExpiry   time.Duration
}

// New builds the server and registers its routes.
func New(objects ObjectStore, meta *metadata.Store, asker Asker, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = time.Hour
	}
	if opts.AnalysisOptions == (analysis.Options{}) {
		opts.AnalysisOptions = analysis.DefaultOptions()
	}
	s := &Server{
		objects:       objects,
		meta:          meta,
		chat:          asker,
		analysisOpts:  opts.AnalysisOptions,
		presignExpiry: opts.PresignExpiry,
		log:           log,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/files", s.handleListFiles)
	s.mux.HandleFunc("GET /api/files/{key}", s.handleFileURL)
	s.mux.HandleFunc("DELETE /api/files/{key}", s.handleDeleteFile)
	s.mux.HandleFunc("GET /api/analyze/{key}", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/clean/{key}", s.handleClean)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.withRequestLog(s.mux))
}

// withCORS applies the permissive policy the web frontend relies on.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// errorBody matches the {"detail": ...} envelope the frontend expects.
type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses: malformed or empty input
// is the client's fault, missing keys are 404, provider failures are 502.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var parseErr *dataset.ParseError
	switch {
	case errors.As(err, &parseErr), errors.Is(err, dataset.ErrEmptyTable):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, metadata.ErrNotFound):
		status = http.StatusNotFound
	case isProviderError(err):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorBody{Detail: err.Error()})
}

func isProviderError(err error) bool {
	var apiErr *ai.APIError
	return errors.As(err, &apiErr)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
