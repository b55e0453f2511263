// digital_key_repository.go implements DigitalKeyRepository, providing
// database queries for credential records with lookups by id, by name, and by
// owner label.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/digitalkey/digitalkey/internal/db/models"
)

// DigitalKeyRepository handles digital key database operations
type DigitalKeyRepository struct {
	db *sql.DB
}

// NewDigitalKeyRepository creates a new DigitalKeyRepository
func NewDigitalKeyRepository(db *sql.DB) *DigitalKeyRepository {
	return &DigitalKeyRepository{db: db}
}

const digitalKeyColumns = `id, name, value, owner, created_at, updated_at`

// Create persists a new digital key. Returns ErrConflict if the name or
// value is already taken.
func (r *DigitalKeyRepository) Create(ctx context.Context, key *models.DigitalKey) error {
	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	query := `
		INSERT INTO digital_keys (name, value, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		key.Name,
		key.Value,
		key.Owner,
		key.CreatedAt,
		key.UpdatedAt,
	).Scan(&key.ID)

	return translateError(err)
}

// GetByID retrieves a digital key by id. Returns ErrNotFound if absent.
func (r *DigitalKeyRepository) GetByID(ctx context.Context, id int64) (*models.DigitalKey, error) {
	query := `SELECT ` + digitalKeyColumns + ` FROM digital_keys WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByName retrieves a digital key by its unique name. Returns ErrNotFound if absent.
func (r *DigitalKeyRepository) GetByName(ctx context.Context, name string) (*models.DigitalKey, error) {
	query := `SELECT ` + digitalKeyColumns + ` FROM digital_keys WHERE name = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

// ListByOwner retrieves all digital keys with the given owner label.
func (r *DigitalKeyRepository) ListByOwner(ctx context.Context, owner string) ([]*models.DigitalKey, error) {
	query := `SELECT ` + digitalKeyColumns + ` FROM digital_keys WHERE owner = $1 ORDER BY id`
	return r.scanMany(r.db.QueryContext(ctx, query, owner))
}

// List retrieves a paginated list of digital keys.
func (r *DigitalKeyRepository) List(ctx context.Context, limit, offset int) ([]*models.DigitalKey, error) {
	query := `SELECT ` + digitalKeyColumns + ` FROM digital_keys ORDER BY id LIMIT $1 OFFSET $2`
	return r.scanMany(r.db.QueryContext(ctx, query, limit, offset))
}

// Count returns the total number of digital keys.
func (r *DigitalKeyRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM digital_keys`).Scan(&total)
	return total, err
}

// Update writes the key's mutable fields and refreshes updated_at.
func (r *DigitalKeyRepository) Update(ctx context.Context, key *models.DigitalKey) error {
	key.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE digital_keys
		SET name = $2, value = $3, owner = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.Name,
		key.Value,
		key.Owner,
		key.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	return requireRowAffected(result)
}

// Delete removes a digital key. Returns ErrNotFound if absent.
func (r *DigitalKeyRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM digital_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *DigitalKeyRepository) scanOne(row *sql.Row) (*models.DigitalKey, error) {
	key := &models.DigitalKey{}
	err := row.Scan(&key.ID, &key.Name, &key.Value, &key.Owner, &key.CreatedAt, &key.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *DigitalKeyRepository) scanMany(rows *sql.Rows, err error) ([]*models.DigitalKey, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.DigitalKey, 0)
	for rows.Next() {
		key := &models.DigitalKey{}
		if err := rows.Scan(&key.ID, &key.Name, &key.Value, &key.Owner, &key.CreatedAt, &key.UpdatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}
