package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bobbyillbrian-max/family-ms/internal/access"
	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
	"github.com/bobbyillbrian-max/family-ms/internal/validation"
)

// MemberHandler handles member listing and profile creation
type MemberHandler struct {
	identity *service.IdentityService
	gate     *access.Gate
	logger   *zap.Logger
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(identity *service.IdentityService, gate *access.Gate, logger *zap.Logger) *MemberHandler {
	return &MemberHandler{
		identity: identity,
		gate:     gate,
		logger:   logger,
	}
}

// ListMembers returns every member of the family in the path
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)

	familyID, ok := parseIDParam(r, "familyID")
	if !ok {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	p, _ := GetPrincipalFromContext(r.Context())
	if err := h.gate.RequireFamily(p, familyID); err != nil {
		respondWithServiceError(w, logger, "member listing denied", err)
		return
	}

	members, err := h.identity.ListMembers(r.Context(), familyID)
	if err != nil {
		respondWithServiceError(w, logger, "failed to list members", err)
		return
	}
	respondWithJSON(w, http.StatusOK, members)
}

type createUserRequest struct {
	FamilyID     int64  `json:"family_id,omitempty"`
	FullName     string `json:"full_name"`
	Relationship string `json:"relationship"`
	HasChildren  bool   `json:"has_children"`
	DateOfBirth  string `json:"date_of_birth,omitempty"`
	Password     string `json:"password"`
}

// CreateUser adds a member profile to the caller's family
func (h *MemberHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	p, _ := GetPrincipalFromContext(r.Context())
	familyID := req.FamilyID
	if familyID == 0 {
		familyID = p.FamilyID
	}
	if err := h.gate.RequireFamily(p, familyID); err != nil {
		respondWithServiceError(w, logger, "member creation denied", err)
		return
	}

	dob, err := parseDateOfBirth("date_of_birth", req.DateOfBirth)
	if err != nil {
		respondWithServiceError(w, logger, "", err)
		return
	}
	user, err := h.identity.AddMember(r.Context(), familyID, models.Profile{
		FullName:     req.FullName,
		Relationship: req.Relationship,
		HasChildren:  req.HasChildren,
		DateOfBirth:  dob,
	}, req.Password)
	if err != nil {
		respondWithServiceError(w, logger, "failed to create member", err)
		return
	}

	logger.Info("member created", zap.Int64("user_id", user.ID), zap.Int64("family_id", familyID))
	respondWithJSON(w, http.StatusCreated, user)
}

func parseIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseDateOfBirth accepts YYYY-MM-DD or RFC 3339. Empty means unknown.
func parseDateOfBirth(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, validation.ValidationError{Field: field, Message: "date must be formatted as YYYY-MM-DD"}
}
