package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/repository"
	"github.com/bobbyillbrian-max/family-ms/internal/security"
	"github.com/bobbyillbrian-max/family-ms/internal/validation"
)

// IdentityService handles families, their members and credential checks
type IdentityService struct {
	familyRepo   *repository.FamilyRepository
	userRepo     *repository.UserRepository
	familyHasher *security.PasswordHasher
	memberHasher *security.PasswordHasher
	tokens       *security.TokenIssuer
	userLocks    *keyedMutex
}

// NewIdentityService creates a new identity service. familyHasher and memberHasher must use
// different password domains.
func NewIdentityService(
	familyRepo *repository.FamilyRepository,
	userRepo *repository.UserRepository,
	familyHasher, memberHasher *security.PasswordHasher,
	tokens *security.TokenIssuer,
) *IdentityService {
	return &IdentityService{
		familyRepo:   familyRepo,
		userRepo:     userRepo,
		familyHasher: familyHasher,
		memberHasher: memberHasher,
		tokens:       tokens,
		userLocks:    newKeyedMutex(),
	}
}

// RegisterFamilyInput carries a new family and its first admin
type RegisterFamilyInput struct {
	Name          string         `json:"name"`
	Password      string         `json:"password"`
	Admin         models.Profile `json:"admin"`
	AdminPassword string         `json:"admin_password"`
}

// RegisterFamily creates a family and its admin atomically
func (s *IdentityService) RegisterFamily(ctx context.Context, in RegisterFamilyInput) (*models.Family, *models.User, error) {
	name := validation.SanitizeText(in.Name)
	if err := validation.ValidateFamilyName(name); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateFamilyPassword(in.Password); err != nil {
		return nil, nil, err
	}
	profile := in.Admin
	if err := validation.NormalizeProfile(&profile); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidatePersonalPassword(in.AdminPassword); err != nil {
		return nil, nil, err
	}

	existing, err := s.familyRepo.GetByName(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check family name: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrDuplicateName
	}

	familyHash, err := s.familyHasher.Hash(in.Password)
	if err != nil {
		return nil, nil, err
	}
	adminHash, err := s.memberHasher.Hash(in.AdminPassword)
	if err != nil {
		return nil, nil, err
	}

	admin := &models.User{Profile: profile, PasswordHash: adminHash}
	family, err := s.familyRepo.CreateWithAdmin(ctx, name, familyHash, admin)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent registration of the same name
		return nil, nil, ErrDuplicateName
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register family: %w", err)
	}
	return family, admin, nil
}

// VerifyFamily checks the shared family secret
func (s *IdentityService) VerifyFamily(ctx context.Context, name, password string) (*models.Family, error) {
	family, err := s.familyRepo.GetByName(ctx, validation.SanitizeText(name))
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	if family == nil {
		return nil, ErrNotFound
	}
	if !s.familyHasher.Check(password, family.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return family, nil
}

// VerifyUser checks a member's personal password
func (s *IdentityService) VerifyUser(ctx context.Context, userID int64, password string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if !s.memberHasher.Check(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// LoginFamily verifies the family secret and returns the family with all of its members
func (s *IdentityService) LoginFamily(ctx context.Context, name, password string) (*models.FamilyWithMembers, error) {
	family, err := s.VerifyFamily(ctx, name, password)
	if err != nil {
		return nil, err
	}
	members, err := s.userRepo.ListByFamily(ctx, family.ID)
	if err != nil {
		return nil, err
	}
	return &models.FamilyWithMembers{Family: *family, Members: members}, nil
}

// LoginResult is a freshly issued session for a member
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
	User      *models.User `json:"user"`
}

// LoginMember verifies a member of familyID and issues a session token. A member of
// another family is reported as not found.
func (s *IdentityService) LoginMember(ctx context.Context, familyID, userID int64, password string) (*LoginResult, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || user.FamilyID != familyID {
		return nil, ErrNotFound
	}
	if !s.memberHasher.Check(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.FamilyID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt.Unix(), User: user}, nil
}

// AddMember creates a member account inside familyID
func (s *IdentityService) AddMember(ctx context.Context, familyID int64, profile models.Profile, password string) (*models.User, error) {
	family, err := s.familyRepo.GetByID(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	if family == nil {
		return nil, ErrNotFound
	}
	if err := validation.NormalizeProfile(&profile); err != nil {
		return nil, err
	}
	if err := validation.ValidatePersonalPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.memberHasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		FamilyID:     familyID,
		Role:         models.RoleMember,
		Profile:      profile,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListMembers returns every member of familyID
func (s *IdentityService) ListMembers(ctx context.Context, familyID int64) ([]models.User, error) {
	family, err := s.familyRepo.GetByID(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	if family == nil {
		return nil, ErrNotFound
	}
	return s.userRepo.ListByFamily(ctx, familyID)
}

// GetUser returns a single member
func (s *IdentityService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// SetProfilePhoto replaces a member's profile photo
func (s *IdentityService) SetProfilePhoto(ctx context.Context, userID int64, blobKey string) error {
	unlock := s.userLocks.Lock(userID)
	defer unlock()

	ok, err := s.userRepo.SetProfilePhoto(ctx, userID, blobKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// AppendGalleryPhoto adds blobKey to a member's gallery and returns the gallery afterwards.
// It fails with ErrGalleryFull once the gallery holds models.MaxGalleryPhotos photos.
func (s *IdentityService) AppendGalleryPhoto(ctx context.Context, userID int64, blobKey string) ([]string, error) {
	unlock := s.userLocks.Lock(userID)
	defer unlock()

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if user.GalleryFull() {
		return nil, ErrGalleryFull
	}

	appended, err := s.userRepo.AppendGalleryPhoto(ctx, userID, blobKey)
	if err != nil {
		return nil, err
	}
	if !appended {
		return nil, ErrGalleryFull
	}
	return s.userRepo.GalleryPhotos(ctx, userID)
}
