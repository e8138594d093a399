package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bobbyillbrian-max/family-ms/internal/access"
	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/security"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
)

// AuthHandler handles family registration and the two login steps
type AuthHandler struct {
	identity *service.IdentityService
	families *security.FamilySessions
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(identity *service.IdentityService, families *security.FamilySessions, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		families: families,
		logger:   logger,
	}
}

type registerFamilyRequest struct {
	FamilyName        string `json:"family_name"`
	Password          string `json:"password"`
	AdminName         string `json:"admin_name"`
	AdminRelationship string `json:"admin_relationship"`
	AdminHasChildren  bool   `json:"admin_has_children"`
	AdminDateOfBirth  string `json:"admin_date_of_birth,omitempty"`
	AdminPassword     string `json:"admin_password"`
}

type registerFamilyResponse struct {
	Message  string `json:"message"`
	FamilyID int64  `json:"family_id"`
	AdminID  int64  `json:"admin_id"`
}

// RegisterFamily creates a family and its first admin
func (h *AuthHandler) RegisterFamily(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)

	var req registerFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	dob, err := parseDateOfBirth("admin_date_of_birth", req.AdminDateOfBirth)
	if err != nil {
		respondWithServiceError(w, logger, "", err)
		return
	}

	family, admin, err := h.identity.RegisterFamily(r.Context(), service.RegisterFamilyInput{
		Name:     req.FamilyName,
		Password: req.Password,
		Admin: models.Profile{
			FullName:     req.AdminName,
			Relationship: req.AdminRelationship,
			HasChildren:  req.AdminHasChildren,
			DateOfBirth:  dob,
		},
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		respondWithServiceError(w, logger, "failed to register family", err)
		return
	}

	logger.Info("family registered", zap.Int64("family_id", family.ID), zap.Int64("admin_id", admin.ID))
	respondWithJSON(w, http.StatusCreated, registerFamilyResponse{
		Message:  "Family created successfully",
		FamilyID: family.ID,
		AdminID:  admin.ID,
	})
}

type loginFamilyRequest struct {
	FamilyName string `json:"family_name"`
	Password   string `json:"password"`
}

// LoginFamily checks the family secret, sets the family cookie and returns the members to pick from.
// A family login always starts a new session, whatever the request carried before.
func (h *AuthHandler) LoginFamily(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)

	var req loginFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	result, err := h.identity.LoginFamily(r.Context(), req.FamilyName, req.Password)
	if err != nil {
		respondWithServiceError(w, logger, "family login failed", err)
		return
	}

	if err := h.families.Select(w, r, result.Family.ID); err != nil {
		respondWithError(w, logger, http.StatusInternalServerError, ErrInternalServerError, "failed to save family session", err)
		return
	}

	logger.Info("family login", zap.Int64("family_id", result.Family.ID))
	respondWithJSON(w, http.StatusOK, result)
}

// Logout clears the family cookie. Bearer tokens are not revoked and expire on their own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)

	if err := h.families.Clear(w, r); err != nil {
		respondWithError(w, logger, http.StatusInternalServerError, ErrInternalServerError, "failed to clear family session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginUserRequest struct {
	UserID   int64  `json:"user_id"`
	Password string `json:"password"`
}

// LoginUser logs a member of the cookie's family in and returns a session token
func (h *AuthHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, h.logger)

	var req loginUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, logger, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	current := access.Unauthenticated
	familyID, ok := h.families.FamilyID(r)
	if ok {
		current = access.FamilySelected
	}
	state, err := access.Transition(current, access.EventPersonalLogin)
	if err != nil {
		respondWithServiceError(w, logger, "personal login without family context", err)
		return
	}

	result, err := h.identity.LoginMember(r.Context(), familyID, req.UserID, req.Password)
	if err != nil {
		respondWithServiceError(w, logger, "personal login failed", err)
		return
	}

	logger.Info("user login",
		zap.Int64("user_id", result.User.ID),
		zap.Int64("family_id", familyID),
		zap.Stringer("state", state))
	respondWithJSON(w, http.StatusOK, result)
}

type sessionResponse struct {
	UserID    int64     `json:"user_id"`
	FamilyID  int64     `json:"family_id"`
	Role      string    `json:"role"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session describes the caller's token. The role is informational only.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, requestLogger(r, h.logger), http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	resp := sessionResponse{
		UserID:   claims.UserID,
		FamilyID: claims.FamilyID,
		Role:     claims.Role,
		State:    access.Authenticated.String(),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	respondWithJSON(w, http.StatusOK, resp)
}
