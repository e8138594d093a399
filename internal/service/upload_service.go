package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/bobbyillbrian-max/family-ms/internal/blob"
	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/validation"
)

// Photo targets for uploads of kind photo
const (
	PhotoTypeProfile = "profile"
	PhotoTypeGallery = "gallery"
)

const discardTimeout = 30 * time.Second

// UploadInput is the metadata sent alongside an uploaded file
type UploadInput struct {
	Kind        blob.Kind
	Name        string
	ContentType string
	Category    string
	Shared      bool
	PhotoType   string
}

// UploadResult reports where an uploaded file ended up
type UploadResult struct {
	BlobKey        string           `json:"blob_key"`
	Size           int64            `json:"size"`
	ContentType    string           `json:"content_type"`
	Document       *models.Document `json:"document,omitempty"`
	ProfilePhoto   string           `json:"profile_photo,omitempty"`
	PersonalPhotos []string         `json:"personal_photos,omitempty"`
}

// UploadService stores files and attaches them to documents or member photos. The blob is
// durable before any record points at it; a failed record write deletes the blob again.
type UploadService struct {
	blobs     *blob.Store
	documents *DocumentService
	identity  *IdentityService
	logger    *zap.Logger
}

// NewUploadService creates a new upload service
func NewUploadService(blobs *blob.Store, documents *DocumentService, identity *IdentityService, logger *zap.Logger) *UploadService {
	return &UploadService{
		blobs:     blobs,
		documents: documents,
		identity:  identity,
		logger:    logger,
	}
}

// Upload streams r into the blob store on behalf of ownerID and records the result
func (s *UploadService) Upload(ctx context.Context, ownerID int64, r io.Reader, in UploadInput) (*UploadResult, error) {
	switch in.Kind {
	case blob.KindDocument:
	case blob.KindPhoto:
		switch in.PhotoType {
		case "", PhotoTypeProfile, PhotoTypeGallery:
		default:
			return nil, validation.ValidationError{Field: "photo_type", Message: "photo_type must be profile or gallery"}
		}
		if in.PhotoType == PhotoTypeGallery {
			// Cheap pre-check; the append below is authoritative
			user, err := s.identity.GetUser(ctx, ownerID)
			if err != nil {
				return nil, err
			}
			if user.GalleryFull() {
				return nil, ErrGalleryFull
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown upload kind %q", blob.ErrUnsupportedType, in.Kind)
	}

	stat, err := s.blobs.Put(ctx, r, blob.PutInput{Kind: in.Kind, Name: in.Name, ContentType: in.ContentType})
	if err != nil {
		return nil, err
	}
	result := &UploadResult{BlobKey: stat.Key, Size: stat.Size, ContentType: stat.ContentType}

	switch {
	case in.Kind == blob.KindDocument:
		result.Document, err = s.documents.RecordDocument(ctx, RecordDocumentInput{
			OwnerID:      ownerID,
			BlobKey:      stat.Key,
			OriginalName: in.Name,
			Size:         stat.Size,
			ContentType:  stat.ContentType,
			Category:     in.Category,
			Shared:       in.Shared,
		})
	case in.PhotoType == PhotoTypeProfile:
		err = s.identity.SetProfilePhoto(ctx, ownerID, stat.Key)
		result.ProfilePhoto = stat.Key
	case in.PhotoType == PhotoTypeGallery:
		result.PersonalPhotos, err = s.identity.AppendGalleryPhoto(ctx, ownerID, stat.Key)
	}
	if err != nil {
		s.discard(ctx, stat.Key, err)
		return nil, err
	}
	return result, nil
}

// discard removes a blob whose record could not be written
func (s *UploadService) discard(ctx context.Context, key string, cause error) {
	// The request may already be cancelled; the blob must still go
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Error("failed to remove orphaned blob",
			zap.String("blob_key", key),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.logger.Warn("removed blob after record write failed",
		zap.String("blob_key", key),
		zap.Error(cause))
}
