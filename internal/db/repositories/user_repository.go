// user_repository.go implements UserRepository, providing database queries for
// user identity records with lookups by surrogate id and by natural keys
// (username, email).
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/digitalkey/digitalkey/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, user_type, email, created_at, updated_at`

// Create persists a new user. The id and timestamps are assigned server-side.
// Returns ErrConflict if the username or email is already taken.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (username, user_type, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		user.Username,
		user.UserType,
		user.Email,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	return translateError(err)
}

// GetByID retrieves a user by id. Returns ErrNotFound if absent.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsername retrieves a user by username. Returns ErrNotFound if absent.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// GetByEmail retrieves a user by email. Returns ErrNotFound if absent.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// List retrieves a paginated list of users, optionally filtered by user type.
func (r *UserRepository) List(ctx context.Context, userType *models.UserType, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []interface{}{}
	if userType != nil {
		query += ` WHERE user_type = $1`
		args = append(args, *userType)
	}
	query += ` ORDER BY id LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(
			&user.ID, &user.Username, &user.UserType, &user.Email,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Count returns the total number of users, honouring the same filter as List.
func (r *UserRepository) Count(ctx context.Context, userType *models.UserType) (int, error) {
	query := `SELECT COUNT(*) FROM users`
	args := []interface{}{}
	if userType != nil {
		query += ` WHERE user_type = $1`
		args = append(args, *userType)
	}
	var total int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

// Update writes the user's mutable fields and refreshes updated_at.
// Returns ErrNotFound if the row is absent, ErrConflict on a uniqueness
// violation.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET username = $2, user_type = $3, email = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.UserType,
		user.Email,
		user.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	return requireRowAffected(result)
}

// Delete removes a user. Returns ErrNotFound if absent. Permission rows
// referencing the user are removed by the ON DELETE CASCADE foreign key;
// the caller is responsible for enforcing the configured delete policy first.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.UserType, &user.Email,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
