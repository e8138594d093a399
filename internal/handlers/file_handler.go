package handlers

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bobbyillbrian-max/family-ms/internal/blob"
)

// FileHandler streams stored blobs. The key itself is the read capability.
type FileHandler struct {
	blobs  *blob.Store
	logger *zap.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(blobs *blob.Store, logger *zap.Logger) *FileHandler {
	return &FileHandler{blobs: blobs, logger: logger}
}

// Fetch handles GET /api/files/{key}
func (h *FileHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)
	key := chi.URLParam(r, "key")

	obj, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		respondWithServiceError(w, logger, "failed to open blob", err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	if name := blob.NameFromKey(key); name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	}
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		// Headers are gone; all that is left is to record it
		logger.Warn("blob download interrupted", zap.String("blob_key", key), zap.Error(err))
	}
}
