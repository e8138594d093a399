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

// UserRepository handles database operations for member accounts and their photos
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, family_id, role, full_name, relationship, has_children, date_of_birth,
	password_hash, COALESCE(profile_photo, ''), created_at, updated_at`

// Create inserts user and sets its ID
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return insertUser(ctx, r.db, user, time.Now().UTC())
}

func insertUser(ctx context.Context, q database.DBTX, user *models.User, now time.Time) error {
	var dob sql.NullTime
	if user.DateOfBirth != nil {
		dob = sql.NullTime{Time: *user.DateOfBirth, Valid: true}
	}

	id, err := q.ExecReturningID(ctx, `
		INSERT INTO users (family_id, role, full_name, relationship, has_children, date_of_birth,
			password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.FamilyID, user.Role, user.FullName, user.Relationship, user.HasChildren, dob,
		user.PasswordHash, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.PersonalPhotos == nil {
		user.PersonalPhotos = []string{}
	}
	return nil
}

// GetByID retrieves a user with its gallery. It returns nil when no user matches.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.PersonalPhotos, err = r.GalleryPhotos(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListByFamily retrieves every member of a family in creation order
func (r *UserRepository) ListByFamily(ctx context.Context, familyID int64) ([]models.User, error) {
	rows, err := r.db.Query(ctx, "SELECT "+userColumns+" FROM users WHERE family_id = ? ORDER BY id", familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	index := map[int64]int{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		index[user.ID] = len(users)
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	photos, err := r.db.Query(ctx, `
		SELECT g.user_id, g.blob_key
		FROM user_gallery_photos g
		INNER JOIN users u ON u.id = g.user_id
		WHERE u.family_id = ?
		ORDER BY g.user_id, g.position`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query gallery photos: %w", err)
	}
	defer photos.Close()

	for photos.Next() {
		var userID int64
		var key string
		if err := photos.Scan(&userID, &key); err != nil {
			return nil, fmt.Errorf("failed to scan gallery photo: %w", err)
		}
		if i, ok := index[userID]; ok {
			users[i].PersonalPhotos = append(users[i].PersonalPhotos, key)
		}
	}
	return users, photos.Err()
}

// SetProfilePhoto replaces the user's profile photo. It reports false when the user does not exist.
func (r *UserRepository) SetProfilePhoto(ctx context.Context, userID int64, blobKey string) (bool, error) {
	result, err := r.db.Exec(ctx,
		"UPDATE users SET profile_photo = ?, updated_at = ? WHERE id = ?", blobKey, time.Now().UTC(), userID)
	if err != nil {
		return false, fmt.Errorf("failed to set profile photo: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// maxGalleryAttempts bounds retries when a concurrent writer claimed the same position
const maxGalleryAttempts = models.MaxGalleryPhotos

// AppendGalleryPhoto appends blobKey to the user's gallery iff it holds fewer than
// models.MaxGalleryPhotos photos. The count and insert happen in one statement, and the
// (user_id, position) unique key rejects a concurrent writer that computed the same position.
// It reports false when the gallery is full.
func (r *UserRepository) AppendGalleryPhoto(ctx context.Context, userID int64, blobKey string) (bool, error) {
	query := `
		INSERT INTO user_gallery_photos (user_id, position, blob_key)
		SELECT u.id, (SELECT COUNT(*) FROM user_gallery_photos g WHERE g.user_id = u.id), ?
		FROM users u
		WHERE u.id = ?
		AND (SELECT COUNT(*) FROM user_gallery_photos g WHERE g.user_id = u.id) < ?`

	for attempt := 0; attempt < maxGalleryAttempts; attempt++ {
		result, err := r.db.Exec(ctx, query, blobKey, userID, models.MaxGalleryPhotos)
		if err != nil {
			if r.db.IsUniqueViolation(err) {
				continue
			}
			return false, fmt.Errorf("failed to append gallery photo: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
	return false, nil
}

// GalleryPhotos returns the user's gallery keys in append order
func (r *UserRepository) GalleryPhotos(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx,
		"SELECT blob_key FROM user_gallery_photos WHERE user_id = ? ORDER BY position", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query gallery photos: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan gallery photo: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{PersonalPhotos: []string{}}
	var dob sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.FamilyID,
		&user.Role,
		&user.FullName,
		&user.Relationship,
		&user.HasChildren,
		&dob,
		&user.PasswordHash,
		&user.ProfilePhoto,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		t := dob.Time
		user.DateOfBirth = &t
	}
	return user, nil
}
