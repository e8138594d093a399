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

// ErrDuplicate is returned when a write collides with a unique key
var ErrDuplicate = errors.New("duplicate record")

// FamilyRepository handles database operations for families
type FamilyRepository struct {
	db *database.DB
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *database.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// CreateWithAdmin creates a family together with its first admin in one transaction.
// admin.ID, admin.FamilyID and admin.Role are filled in on success.
func (r *FamilyRepository) CreateWithAdmin(ctx context.Context, name, passwordHash string, admin *models.User) (*models.Family, error) {
	now := time.Now().UTC()
	family := &models.Family{
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		familyID, err := tx.ExecReturningID(ctx,
			"INSERT INTO families (name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)",
			name, passwordHash, now, now)
		if err != nil {
			return fmt.Errorf("failed to create family: %w", err)
		}
		family.ID = familyID

		admin.FamilyID = familyID
		admin.Role = models.RoleAdmin
		if err := insertUser(ctx, tx, admin, now); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO family_admins (family_id, user_id) VALUES (?, ?)", familyID, admin.ID); err != nil {
			return fmt.Errorf("failed to link family admin: %w", err)
		}
		return nil
	})
	if err != nil {
		if r.db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
		return nil, err
	}

	family.AdminIDs = []int64{admin.ID}
	return family, nil
}

// GetByName retrieves a family by its unique name. It returns nil when no family matches.
func (r *FamilyRepository) GetByName(ctx context.Context, name string) (*models.Family, error) {
	return r.getOne(ctx, "WHERE name = ?", name)
}

// GetByID retrieves a family by ID. It returns nil when no family matches.
func (r *FamilyRepository) GetByID(ctx context.Context, familyID int64) (*models.Family, error) {
	return r.getOne(ctx, "WHERE id = ?", familyID)
}

func (r *FamilyRepository) getOne(ctx context.Context, where string, arg any) (*models.Family, error) {
	query := "SELECT id, name, password_hash, created_at, updated_at FROM families " + where
	family := &models.Family{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&family.ID,
		&family.Name,
		&family.PasswordHash,
		&family.CreatedAt,
		&family.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}

	family.AdminIDs, err = r.adminIDs(ctx, family.ID)
	if err != nil {
		return nil, err
	}
	return family, nil
}

func (r *FamilyRepository) adminIDs(ctx context.Context, familyID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT user_id FROM family_admins WHERE family_id = ? ORDER BY user_id", familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query family admins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan family admin: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
