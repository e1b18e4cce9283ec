package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/dataloom/internal/analysis"
	"github.com/KaramelBytes/dataloom/internal/chat"
	"github.com/KaramelBytes/dataloom/internal/cleaning"
	"github.com/KaramelBytes/dataloom/internal/dataset"
	"github.com/KaramelBytes/dataloom/internal/metadata"
)

// handleUpload accepts a multipart CSV, stores the raw object, analyzes it,
// and records metadata. The object is stored before analysis so a later
// re-analysis can still reach it, matching the previous backend.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: fmt.Sprintf("parse multipart form: %v", err)})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "missing form field: file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		s.writeError(w, fmt.Errorf("read upload: %w", err))
		return
	}
	if len(content) > maxUploadBytes {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "file too large"})
		return
	}

	ctx := r.Context()
	key, err := s.objects.Upload(ctx, bytes.NewReader(content), int64(len(content)), header.Filename)
	if err != nil {
		s.writeError(w, fmt.Errorf("store upload: %w", err))
		return
	}

	result, err := s.analyzeBytes(content, header.Filename, key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec := metadata.FileRecord{
		Key:       key,
		Filename:  header.Filename,
		SizeBytes: int64(len(content)),
		Rows:      result.TotalRows,
		Columns:   result.TotalColumns,
	}
	if err := s.meta.Put(ctx, rec); err != nil {
		s.writeError(w, fmt.Errorf("record metadata: %w", err))
		return
	}
	s.log.Info("file uploaded",
		zap.String("key", key),
		zap.String("filename", header.Filename),
		zap.Int("rows", result.TotalRows),
		zap.Int("columns", result.TotalColumns))
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	recs, err := s.meta.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []metadata.FileRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"files": recs})
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	url, err := s.objects.PresignedURL(r.Context(), key, s.presignExpiry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctx := r.Context()
	if err := s.objects.Delete(ctx, key); err != nil {
		s.writeError(w, err)
		return
	}
	// Metadata may be absent for objects uploaded out of band.
	if err := s.meta.Delete(ctx, key); err != nil && !errors.Is(err, metadata.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	result, err := s.analyzeStored(r, key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleClean re-loads a stored dataset, applies the cleaning strategy, and
// uploads the cleaned CSV as a sibling object.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req struct {
		Strategy  string `json:"strategy"`
		FillValue string `json:"fill_value"`
	}
	if r.Body != nil {
		// Body is optional; default strategy is auto.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: fmt.Sprintf("decode request: %v", err)})
			return
		}
	}

	ctx := r.Context()
	content, err := s.objects.Download(ctx, key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := dataset.Load(bytes.NewReader(content))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := cleaning.Clean(t, cleaning.Strategy(req.Strategy), req.FillValue); err != nil {
		if errors.Is(err, cleaning.ErrFillValueRequired) {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	encoded, err := cleaning.Encode(t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cleanedKey, err := s.objects.UploadCleaned(ctx, bytes.NewReader(encoded), int64(len(encoded)), key)
	if err != nil {
		s.writeError(w, fmt.Errorf("store cleaned file: %w", err))
		return
	}
	if err := s.meta.SetCleanedKey(ctx, key, cleanedKey); err != nil && !errors.Is(err, metadata.ErrNotFound) {
		s.writeError(w, err)
		return
	}

	result, err := analysis.Analyze(t, s.analysisOpts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result.FileKey = cleanedKey
	s.log.Info("file cleaned", zap.String("key", key), zap.String("cleaned_key", cleanedKey))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cleaned_key": cleanedKey,
		"analysis":    result,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileKey  string      `json:"file_key"`
		Question string      `json:"question"`
		History  []chat.Turn `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: fmt.Sprintf("decode request: %v", err)})
		return
	}
	if req.FileKey == "" || req.Question == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "file_key and question are required"})
		return
	}

	result, err := s.analyzeStored(r, req.FileKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	reply, err := s.chat.Ask(r.Context(), result, req.Question, req.History)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// analyzeStored downloads a stored object and re-analyzes it, attaching the
// original filename when metadata is available.
func (s *Server) analyzeStored(r *http.Request, key string) (*analysis.Result, error) {
	ctx := r.Context()
	content, err := s.objects.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	filename := ""
	if rec, err := s.meta.Get(ctx, key); err == nil {
		filename = rec.Filename
	}
	return s.analyzeBytes(content, filename, key)
}

func (s *Server) analyzeBytes(content []byte, filename, key string) (*analysis.Result, error) {
	start := time.Now()
	t, err := dataset.Load(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	result, err := analysis.Analyze(t, s.analysisOpts)
	if err != nil {
		return nil, err
	}
	result.Filename = filename
	result.FileKey = key
	s.log.Debug("analysis complete",
		zap.String("key", key),
		zap.Int("rows", result.TotalRows),
		zap.Int("columns", result.TotalColumns),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}
