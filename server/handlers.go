package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/rag"
)

const maxUploadBytes = 32 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		s.respondError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	question := strings.TrimSpace(r.FormValue("question"))
	if question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	k := 5
	if raw := r.FormValue("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.respondError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}

	// Uploaded files, if any, are ingested before answering.
	if r.MultipartForm != nil && len(r.MultipartForm.File["files"]) > 0 {
		files, err := readUploads(r)
		if err != nil {
			s.logger.Error("failed to read uploaded file", zap.Error(err))
			s.respondError(w, http.StatusBadRequest, "failed to read uploaded file")
			return
		}

		report, err := s.service.Ingest(r.Context(), files)
		switch {
		case errors.Is(err, rag.ErrValidation):
			s.logger.Warn("ingestion rejected", zap.Error(err))
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			// Store and model internals are logged, never surfaced.
			s.logger.Error("ingestion failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "ingestion failed")
			return
		}
		s.logger.Info("ingested uploads",
			zap.Int("chunks", report.ChunksWritten), zap.Int("pages", report.PagesSeen))
	}

	result, err := s.service.Answer(r.Context(), question, k)
	switch {
	case errors.Is(err, rag.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case rag.IsInfraErr(err):
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "upstream service error")
		return
	case err != nil:
		s.logger.Error("unhandled error during query", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readUploads(r *http.Request) ([]models.SourceFile, error) {
	headers := r.MultipartForm.File["files"]
	files := make([]models.SourceFile, 0, len(headers))

	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, models.SourceFile{Filename: header.Filename, Data: data})
	}

	return files, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, detail string) {
	s.respondJSON(w, status, map[string]string{"detail": detail})
}
