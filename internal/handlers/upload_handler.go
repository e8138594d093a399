package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bobbyillbrian-max/family-ms/internal/blob"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
)

// UploadHandler accepts multipart uploads and streams the file part into the blob store
type UploadHandler struct {
	uploads *service.UploadService
	maxSize int64
	logger  *zap.Logger
}

// NewUploadHandler creates a new upload handler. maxSize is the largest accepted file in bytes.
func NewUploadHandler(uploads *service.UploadService, maxSize int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		maxSize: maxSize,
		logger:  logger,
	}
}

// Upload handles POST /api/upload/{kind}. Form fields (category, is_shared, photo_type) must
// come before the "file" part; anything after it is ignored.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, logger, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	in := service.UploadInput{Kind: blob.Kind(chi.URLParam(r, "kind"))}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		respondWithError(w, logger, http.StatusBadRequest, "Expected multipart form data", "", err)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			respondWithReadError(w, logger, err)
			return
		}

		if part.FormName() == "file" {
			in.Name = part.FileName()
			in.ContentType = part.Header.Get("Content-Type")
			result, err := h.uploads.Upload(r.Context(), claims.UserID, part, in)
			part.Close()
			if err != nil {
				respondWithServiceError(w, logger, "upload failed", err)
				return
			}
			logger.Info("file uploaded",
				zap.Int64("user_id", claims.UserID),
				zap.String("kind", string(in.Kind)),
				zap.String("blob_key", result.BlobKey),
				zap.Int64("size", result.Size))
			respondWithJSON(w, http.StatusCreated, result)
			return
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFormFieldBytes))
		part.Close()
		if err != nil {
			respondWithReadError(w, logger, err)
			return
		}
		switch part.FormName() {
		case "category":
			in.Category = string(value)
		case "is_shared":
			in.Shared = strings.TrimSpace(string(value)) == "true"
		case "photo_type":
			in.PhotoType = strings.TrimSpace(string(value))
		}
	}

	respondWithError(w, logger, http.StatusBadRequest, "No file uploaded", "", nil)
}

func respondWithReadError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		respondWithError(w, logger, http.StatusRequestEntityTooLarge, "File too large", "", err)
		return
	}
	respondWithError(w, logger, http.StatusBadRequest, "Malformed multipart body", "", err)
}
