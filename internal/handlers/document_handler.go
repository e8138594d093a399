package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bobbyillbrian-max/family-ms/internal/access"
	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
)

// DocumentHandler handles document listings and sharing
type DocumentHandler struct {
	documents *service.DocumentService
	gate      *access.Gate
	logger    *zap.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *service.DocumentService, gate *access.Gate, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		gate:      gate,
		logger:    logger,
	}
}

// ListUserDocuments returns the path user's documents: all of them to the user, shared ones to family members
func (h *DocumentHandler) ListUserDocuments(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)
	userID, ok := parseIDParam(r, "userID")
	if !ok {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	claims := GetClaimsFromContext(r.Context())

	docs, err := h.documents.ListUserDocuments(r.Context(), claims.UserID, userID)
	if err != nil {
		respondWithServiceError(w, logger, "failed to list user documents", err)
		return
	}
	respondWithJSON(w, http.StatusOK, docs)
}

// ListVisible returns every document the caller may see
func (h *DocumentHandler) ListVisible(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())

	docs, err := h.documents.ListVisibleTo(r.Context(), claims.UserID)
	if err != nil {
		respondWithServiceError(w, requestLogger(r, h.logger), "failed to list visible documents", err)
		return
	}
	respondWithJSON(w, http.StatusOK, docs)
}

// ListFamilyShared returns the family's shared documents with their owners
func (h *DocumentHandler) ListFamilyShared(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)
	familyID, ok := parseIDParam(r, "familyID")
	if !ok {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	p, _ := GetPrincipalFromContext(r.Context())
	if err := h.gate.RequireFamily(p, familyID); err != nil {
		respondWithServiceError(w, logger, "shared listing denied", err)
		return
	}

	docs, err := h.documents.ListSharedInFamily(r.Context(), familyID)
	if err != nil {
		respondWithServiceError(w, logger, "failed to list shared documents", err)
		return
	}
	respondWithJSON(w, http.StatusOK, docs)
}

type setSharingRequest struct {
	IsShared *bool `json:"is_shared"`
}

type setSharingResponse struct {
	Message  string           `json:"message"`
	Document *models.Document `json:"document"`
}

// SetSharing changes a document's shared flag. Only the owner may.
func (h *DocumentHandler) SetSharing(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)
	docID, ok := parseIDParam(r, "docID")
	if !ok {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	var req setSharingRequest
	if err := decodeJSON(w, r, &req); err != nil || req.IsShared == nil {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	claims := GetClaimsFromContext(r.Context())
	doc, err := h.documents.GetDocument(r.Context(), docID)
	if err != nil {
		respondWithServiceError(w, logger, "failed to get document", err)
		return
	}
	if err := h.gate.RequireOwner(claims, doc.UserID); err != nil {
		respondWithServiceError(w, logger, "sharing change denied", err)
		return
	}

	doc, err = h.documents.SetSharing(r.Context(), docID, claims.UserID, *req.IsShared)
	if err != nil {
		respondWithServiceError(w, logger, "failed to update sharing", err)
		return
	}
	respondWithJSON(w, http.StatusOK, setSharingResponse{Message: "Document sharing updated", Document: doc})
}
