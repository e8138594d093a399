package service

import (
	"context"
	"fmt"

	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/repository"
	"github.com/bobbyillbrian-max/family-ms/internal/validation"
)

const maxCategoryLength = 50

// DocumentService handles document records and their visibility
type DocumentService struct {
	documentRepo *repository.DocumentRepository
	userRepo     *repository.UserRepository
}

// NewDocumentService creates a new document service
func NewDocumentService(documentRepo *repository.DocumentRepository, userRepo *repository.UserRepository) *DocumentService {
	return &DocumentService{
		documentRepo: documentRepo,
		userRepo:     userRepo,
	}
}

// RecordDocumentInput describes a blob that has already been stored
type RecordDocumentInput struct {
	OwnerID      int64
	BlobKey      string
	OriginalName string
	Size         int64
	ContentType  string
	Category     string
	Shared       bool
}

// RecordDocument writes the metadata record for a stored blob
func (s *DocumentService) RecordDocument(ctx context.Context, in RecordDocumentInput) (*models.Document, error) {
	category := validation.SanitizeText(in.Category)
	if category == "" {
		category = models.DefaultCategory
	}
	if len([]rune(category)) > maxCategoryLength {
		return nil, validation.ValidationError{
			Field:   "category",
			Message: fmt.Sprintf("category must be at most %d characters", maxCategoryLength),
		}
	}

	originalName := validation.SanitizeFileName(in.OriginalName)
	if originalName == "" {
		return nil, validation.ValidationError{Field: "original_name", Message: "file name is required"}
	}

	doc := &models.Document{
		UserID:       in.OwnerID,
		BlobKey:      in.BlobKey,
		OriginalName: originalName,
		Size:         in.Size,
		ContentType:  in.ContentType,
		Category:     category,
		IsShared:     in.Shared,
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument returns a single document record
func (s *DocumentService) GetDocument(ctx context.Context, docID int64) (*models.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// ListOwn returns the documents owned by userID
func (s *DocumentService) ListOwn(ctx context.Context, userID int64) ([]models.Document, error) {
	return s.documentRepo.ListByOwner(ctx, userID)
}

// ListVisibleTo returns userID's own documents plus those shared by members of the same family
func (s *DocumentService) ListVisibleTo(ctx context.Context, userID int64) ([]models.Document, error) {
	return s.documentRepo.ListVisibleTo(ctx, userID)
}

// ListUserDocuments lists targetID's documents as seen by requesterID: everything when they
// are the same user, only shared documents for another member of the same family.
func (s *DocumentService) ListUserDocuments(ctx context.Context, requesterID, targetID int64) ([]models.Document, error) {
	if requesterID == targetID {
		return s.documentRepo.ListByOwner(ctx, targetID)
	}

	requester, err := s.userRepo.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if requester == nil || target == nil {
		return nil, ErrNotFound
	}
	if requester.FamilyID != target.FamilyID {
		return nil, ErrForbidden
	}
	return s.documentRepo.ListSharedByOwner(ctx, targetID)
}

// SetSharing changes a document's shared flag. Only the owner may do this; the admin role
// grants no override.
func (s *DocumentService) SetSharing(ctx context.Context, docID, requesterID int64, shared bool) (*models.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	if doc.UserID != requesterID {
		return nil, ErrForbidden
	}

	if err := s.documentRepo.SetShared(ctx, docID, shared); err != nil {
		return nil, err
	}
	doc.IsShared = shared
	return doc, nil
}

// ListSharedInFamily returns the family's shared documents annotated with their owners
func (s *DocumentService) ListSharedInFamily(ctx context.Context, familyID int64) ([]models.SharedDocument, error) {
	return s.documentRepo.ListSharedInFamily(ctx, familyID)
}
