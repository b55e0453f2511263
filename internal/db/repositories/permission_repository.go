// permission_repository.go implements PermissionRepository, providing database
// queries for the permission grant/revoke lifecycle and the access summary
// joins. The duplicate-active invariant lives in the database itself (the
// permissions_one_active_per_pair partial unique index), so inserts and
// reactivating updates are atomic: there is no check-then-act window under
// concurrent grants for the same pair.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digitalkey/digitalkey/internal/db/models"
)

// PermissionRepository handles permission database operations
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository creates a new PermissionRepository
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

const permissionColumns = `id, user_id, machine_id, digital_key_id, level, is_active, created_at, updated_at, revoked_at`

// Create inserts a new active permission row. Returns
// ErrDuplicateActivePermission if an active permission already exists for the
// (user, machine) pair, and ErrNotFound if a referenced user, machine, or key
// was deleted between validation and insert.
func (r *PermissionRepository) Create(ctx context.Context, p *models.Permission) error {
	now := time.Now().UTC()
	p.IsActive = true
	p.RevokedAt = nil
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO permissions (user_id, machine_id, digital_key_id, level, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		p.UserID,
		p.MachineID,
		p.DigitalKeyID,
		p.Level,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&p.ID)

	return translateError(err)
}

// GetByID retrieves a permission by id. Returns ErrNotFound if absent.
func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*models.Permission, error) {
	var p models.Permission
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE id = $1`
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetActiveByPair retrieves the single active permission for a (user, machine)
// pair. Returns ErrNotFound if none is active.
func (r *PermissionRepository) GetActiveByPair(ctx context.Context, userID, machineID int64) (*models.Permission, error) {
	var p models.Permission
	query := `
		SELECT ` + permissionColumns + `
		FROM permissions
		WHERE user_id = $1 AND machine_id = $2 AND is_active
	`
	err := r.db.GetContext(ctx, &p, query, userID, machineID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List retrieves a paginated list of all permissions, active and revoked.
func (r *PermissionRepository) List(ctx context.Context, limit, offset int) ([]*models.Permission, error) {
	perms := make([]*models.Permission, 0)
	query := `SELECT ` + permissionColumns + ` FROM permissions ORDER BY id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &perms, query, limit, offset); err != nil {
		return nil, err
	}
	return perms, nil
}

// Count returns the total number of permission rows.
func (r *PermissionRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM permissions`)
	return total, err
}

// ListByUser retrieves a user's permissions, all rows or only active ones.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID int64, activeOnly bool) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY id`

	perms := make([]*models.Permission, 0)
	if err := r.db.SelectContext(ctx, &perms, query, userID); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListByMachine retrieves a machine's permissions, all rows or only active ones.
func (r *PermissionRepository) ListByMachine(ctx context.Context, machineID int64, activeOnly bool) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE machine_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY id`

	perms := make([]*models.Permission, 0)
	if err := r.db.SelectContext(ctx, &perms, query, machineID); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListByKey retrieves the permissions issued against a digital key, all rows
// or only active ones.
func (r *PermissionRepository) ListByKey(ctx context.Context, keyID int64, activeOnly bool) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE digital_key_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY id`

	perms := make([]*models.Permission, 0)
	if err := r.db.SelectContext(ctx, &perms, query, keyID); err != nil {
		return nil, err
	}
	return perms, nil
}

// Revoke deactivates a permission and stamps revoked_at. The conditional
// UPDATE only matches active rows, so an earlier revocation time is never
// silently overwritten: revoking an already-revoked permission returns
// ErrConflict, and revoking a missing one returns ErrNotFound.
func (r *PermissionRepository) Revoke(ctx context.Context, id int64) (*models.Permission, error) {
	now := time.Now().UTC()

	var p models.Permission
	query := `
		UPDATE permissions
		SET is_active = FALSE, revoked_at = $2, updated_at = $2
		WHERE id = $1 AND is_active
		RETURNING ` + permissionColumns

	err := r.db.GetContext(ctx, &p, query, id, now)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row does not exist or it is already inactive.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RevokeByPair revokes the current active permission for a (user, machine)
// pair. Returns ErrNotFound if no active permission exists.
func (r *PermissionRepository) RevokeByPair(ctx context.Context, userID, machineID int64) (*models.Permission, error) {
	now := time.Now().UTC()

	var p models.Permission
	query := `
		UPDATE permissions
		SET is_active = FALSE, revoked_at = $3, updated_at = $3
		WHERE user_id = $1 AND machine_id = $2 AND is_active
		RETURNING ` + permissionColumns

	err := r.db.GetContext(ctx, &p, query, userID, machineID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update writes the permission's level and active flag. Deactivating stamps
// revoked_at (unless already set); reactivating clears it. A reactivation
// that would produce a second active row for the pair trips the partial
// unique index and returns ErrDuplicateActivePermission.
func (r *PermissionRepository) Update(ctx context.Context, id int64, level models.PermissionLevel, isActive bool) (*models.Permission, error) {
	now := time.Now().UTC()

	var p models.Permission
	query := `
		UPDATE permissions
		SET level = $2,
		    is_active = $3,
		    revoked_at = CASE WHEN $3 THEN NULL ELSE COALESCE(revoked_at, $4) END,
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + permissionColumns

	err := r.db.GetContext(ctx, &p, query, id, level, isActive, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &p, nil
}

// Delete removes a permission row regardless of its active state.
func (r *PermissionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

// CountActive returns the number of active permissions referencing the given
// entity column (user_id, machine_id, or digital_key_id). Used by the delete
// policy check before removing a referenced entity.
func (r *PermissionRepository) countActive(ctx context.Context, column string, id int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM permissions WHERE ` + column + ` = $1 AND is_active`
	err := r.db.GetContext(ctx, &n, query, id)
	return n, err
}

// CountActiveByUser returns the number of active permissions held by a user.
func (r *PermissionRepository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	return r.countActive(ctx, "user_id", userID)
}

// CountActiveByMachine returns the number of active permissions on a machine.
func (r *PermissionRepository) CountActiveByMachine(ctx context.Context, machineID int64) (int, error) {
	return r.countActive(ctx, "machine_id", machineID)
}

// CountActiveByKey returns the number of active permissions issued against a key.
func (r *PermissionRepository) CountActiveByKey(ctx context.Context, keyID int64) (int, error) {
	return r.countActive(ctx, "digital_key_id", keyID)
}

// ListMachineAccess returns all of a user's permission rows joined against
// machines, active and revoked alike, oldest grant first.
func (r *PermissionRepository) ListMachineAccess(ctx context.Context, userID int64) ([]models.MachineAccess, error) {
	query := `
		SELECT p.id AS permission_id, m.id AS machine_id, m.name AS machine_name,
		       m.machine_type, p.level, p.created_at AS granted_at, p.revoked_at
		FROM permissions p
		JOIN machines m ON m.id = p.machine_id
		WHERE p.user_id = $1
		ORDER BY p.created_at, p.id
	`

	access := make([]models.MachineAccess, 0)
	if err := r.db.SelectContext(ctx, &access, query, userID); err != nil {
		return nil, err
	}
	return access, nil
}

// ListUserAccess returns all of a machine's permission rows joined against
// users, active and revoked alike, oldest grant first.
func (r *PermissionRepository) ListUserAccess(ctx context.Context, machineID int64) ([]models.UserAccess, error) {
	query := `
		SELECT p.id AS permission_id, u.id AS user_id, u.username, u.user_type,
		       p.level, p.created_at AS granted_at, p.revoked_at
		FROM permissions p
		JOIN users u ON u.id = p.user_id
		WHERE p.machine_id = $1
		ORDER BY p.created_at, p.id
	`

	access := make([]models.UserAccess, 0)
	if err := r.db.SelectContext(ctx, &access, query, machineID); err != nil {
		return nil, err
	}
	return access, nil
}
