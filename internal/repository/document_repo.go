package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobbyillbrian-max/family-ms/internal/database"
	"github.com/bobbyillbrian-max/family-ms/internal/models"
)

// DocumentRepository handles database operations for document records
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = "d.id, d.user_id, d.blob_key, d.original_name, d.size, d.content_type, d.category, d.is_shared, d.uploaded_at"

// Create inserts doc and sets its ID and upload time
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	id, err := r.db.ExecReturningID(ctx, `
		INSERT INTO documents (user_id, blob_key, original_name, size, content_type, category, is_shared, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.UserID, doc.BlobKey, doc.OriginalName, doc.Size, doc.ContentType, doc.Category, doc.IsShared, now)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	doc.ID = id
	doc.UploadedAt = now
	return nil
}

// GetByID retrieves a document. It returns nil when no document matches.
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	row := r.db.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents d WHERE d.id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByOwner returns the documents owned by userID, newest first
func (r *DocumentRepository) ListByOwner(ctx context.Context, userID int64) ([]models.Document, error) {
	return r.list(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		WHERE d.user_id = ?
		ORDER BY d.uploaded_at DESC, d.id DESC`, userID)
}

// ListSharedByOwner returns the shared documents owned by userID, newest first
func (r *DocumentRepository) ListSharedByOwner(ctx context.Context, userID int64) ([]models.Document, error) {
	return r.list(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		WHERE d.user_id = ? AND d.is_shared = ?
		ORDER BY d.uploaded_at DESC, d.id DESC`, userID, true)
}

// ListVisibleTo returns the viewer's own documents and the shared documents of
// other members of the viewer's family. Documents of other families are never returned.
func (r *DocumentRepository) ListVisibleTo(ctx context.Context, viewerID int64) ([]models.Document, error) {
	return r.list(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		INNER JOIN users o ON o.id = d.user_id
		INNER JOIN users v ON v.id = ?
		WHERE d.user_id = v.id
		OR (d.is_shared = ? AND o.family_id = v.family_id)
		ORDER BY d.uploaded_at DESC, d.id DESC`, viewerID, true)
}

// ListSharedInFamily returns every shared document owned by a member of familyID, with its owner
func (r *DocumentRepository) ListSharedInFamily(ctx context.Context, familyID int64) ([]models.SharedDocument, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+documentColumns+`, u.id, u.full_name, u.relationship
		FROM documents d
		INNER JOIN users u ON u.id = d.user_id
		WHERE u.family_id = ? AND d.is_shared = ?
		ORDER BY d.uploaded_at DESC, d.id DESC`, familyID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query shared documents: %w", err)
	}
	defer rows.Close()

	docs := []models.SharedDocument{}
	for rows.Next() {
		var sd models.SharedDocument
		if err := rows.Scan(
			&sd.ID, &sd.UserID, &sd.BlobKey, &sd.OriginalName, &sd.Size, &sd.ContentType,
			&sd.Category, &sd.IsShared, &sd.UploadedAt,
			&sd.Owner.ID, &sd.Owner.FullName, &sd.Owner.Relationship,
		); err != nil {
			return nil, fmt.Errorf("failed to scan shared document: %w", err)
		}
		docs = append(docs, sd)
	}
	return docs, rows.Err()
}

// SetShared updates a document's shared flag
func (r *DocumentRepository) SetShared(ctx context.Context, id int64, shared bool) error {
	if _, err := r.db.Exec(ctx, "UPDATE documents SET is_shared = ? WHERE id = ?", shared, id); err != nil {
		return fmt.Errorf("failed to update document sharing: %w", err)
	}
	return nil
}

func (r *DocumentRepository) list(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanDocument(row rowScanner) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.BlobKey,
		&doc.OriginalName,
		&doc.Size,
		&doc.ContentType,
		&doc.Category,
		&doc.IsShared,
		&doc.UploadedAt,
	)
	return doc, err
}
