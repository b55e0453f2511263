// machine_repository.go implements MachineRepository, providing database
// queries for machine records with lookups by id and by name, and list
// filtering by machine type and active flag.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/digitalkey/digitalkey/internal/db/models"
)

// MachineRepository handles machine database operations
type MachineRepository struct {
	db *sql.DB
}

// NewMachineRepository creates a new MachineRepository
func NewMachineRepository(db *sql.DB) *MachineRepository {
	return &MachineRepository{db: db}
}

const machineColumns = `id, name, machine_type, ip_address, description, is_active, created_at, updated_at`

// MachineFilters narrows List and Count results. Nil fields match everything.
type MachineFilters struct {
	MachineType *models.MachineType
	IsActive    *bool
}

// Create persists a new machine. Returns ErrConflict if the name is taken.
func (r *MachineRepository) Create(ctx context.Context, machine *models.Machine) error {
	now := time.Now().UTC()
	machine.CreatedAt = now
	machine.UpdatedAt = now

	query := `
		INSERT INTO machines (name, machine_type, ip_address, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		machine.Name,
		machine.MachineType,
		machine.IPAddress,
		machine.Description,
		machine.IsActive,
		machine.CreatedAt,
		machine.UpdatedAt,
	).Scan(&machine.ID)

	return translateError(err)
}

// GetByID retrieves a machine by id. Returns ErrNotFound if absent.
func (r *MachineRepository) GetByID(ctx context.Context, id int64) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByName retrieves a machine by its unique name. Returns ErrNotFound if absent.
func (r *MachineRepository) GetByName(ctx context.Context, name string) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE name = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

// List retrieves a paginated list of machines matching the filters.
func (r *MachineRepository) List(ctx context.Context, filters MachineFilters, limit, offset int) ([]*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines`
	where, args := filters.build()
	query += where
	query += ` ORDER BY id LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	machines := make([]*models.Machine, 0)
	for rows.Next() {
		m := &models.Machine{}
		if err := rows.Scan(
			&m.ID, &m.Name, &m.MachineType, &m.IPAddress, &m.Description,
			&m.IsActive, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}

	return machines, rows.Err()
}

// Count returns the number of machines matching the filters.
func (r *MachineRepository) Count(ctx context.Context, filters MachineFilters) (int, error) {
	query := `SELECT COUNT(*) FROM machines`
	where, args := filters.build()
	query += where

	var total int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

// Update writes the machine's mutable fields and refreshes updated_at.
func (r *MachineRepository) Update(ctx context.Context, machine *models.Machine) error {
	machine.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE machines
		SET name = $2, machine_type = $3, ip_address = $4, description = $5, is_active = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		machine.ID,
		machine.Name,
		machine.MachineType,
		machine.IPAddress,
		machine.Description,
		machine.IsActive,
		machine.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	return requireRowAffected(result)
}

// Delete removes a machine. Returns ErrNotFound if absent. Permission rows
// referencing the machine are removed by the ON DELETE CASCADE foreign key;
// the caller is responsible for enforcing the configured delete policy first.
func (r *MachineRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM machines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (f MachineFilters) build() (string, []interface{}) {
	where := ""
	args := []interface{}{}
	if f.MachineType != nil {
		where += ` WHERE machine_type = $1`
		args = append(args, *f.MachineType)
	}
	if f.IsActive != nil {
		if where == "" {
			where = ` WHERE is_active = $1`
		} else {
			where += ` AND is_active = $2`
		}
		args = append(args, *f.IsActive)
	}
	return where, args
}

func (r *MachineRepository) scanOne(row *sql.Row) (*models.Machine, error) {
	m := &models.Machine{}
	err := row.Scan(
		&m.ID, &m.Name, &m.MachineType, &m.IPAddress, &m.Description,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
