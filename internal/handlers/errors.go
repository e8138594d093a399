package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bobbyillbrian-max/family-ms/internal/access"
	"github.com/bobbyillbrian-max/family-ms/internal/blob"
	"github.com/bobbyillbrian-max/family-ms/internal/security"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
	"github.com/bobbyillbrian-max/family-ms/internal/validation"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondWithError writes userMsg to the client. err is logged, never sent.
func respondWithError(w http.ResponseWriter, logger *zap.Logger, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		if status >= http.StatusInternalServerError {
			logger.Error(logMsg, zap.Int("status", status), zap.Error(err))
		} else {
			logger.Debug(logMsg, zap.Int("status", status), zap.Error(err))
		}
	}
	respondWithJSON(w, status, errorResponse{Error: userMsg})
}

// respondWithServiceError maps a domain error to its status code
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, logMsg string, err error) {
	status, msg := statusForError(err)
	respondWithError(w, logger, status, msg, logMsg, err)
}

func statusForError(err error) (int, string) {
	var validationErr validation.ValidationError
	var policyErr validation.PasswordPolicyError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.As(err, &policyErr):
		return http.StatusBadRequest, policyErr.Error()
	case errors.Is(err, blob.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "Unsupported file type"
	case errors.Is(err, blob.ErrTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "File too large"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, security.ErrTokenExpired):
		return http.StatusUnauthorized, "Session expired"
	case errors.Is(err, security.ErrTokenMalformed),
		errors.Is(err, security.ErrTokenSignature),
		errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrUnauthorized
	case errors.Is(err, access.ErrInvalidTransition):
		return http.StatusUnauthorized, "Family login required"
	case errors.Is(err, service.ErrForbidden), errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, ErrForbidden
	case errors.Is(err, service.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, service.ErrDuplicateName):
		return http.StatusConflict, "Family name already exists"
	case errors.Is(err, service.ErrGalleryFull):
		return http.StatusConflict, "Gallery already holds the maximum number of photos"
	default:
		return http.StatusInternalServerError, ErrInternalServerError
	}
}

// decodeJSON reads exactly one JSON object from the request body
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

// requestLogger tags logger with the chi request id
func requestLogger(r *http.Request, logger *zap.Logger) *zap.Logger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
