// audit_repository.go implements AuditRepository, providing database queries
// for writing and retrieving audit log entries with filtered queries across
// actions and resources.
package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digitalkey/digitalkey/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	Action       *string
	ResourceType *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// Create inserts a new audit log entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.CreatedAt = time.Now().UTC()

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_logs (action, resource_type, resource_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		metadataJSON,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

// List retrieves a paginated list of audit log entries matching the filters,
// newest first.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, error) {
	query := `SELECT id, action, resource_type, resource_id, metadata, created_at FROM audit_logs`
	where := ""
	args := []interface{}{}

	addClause := func(clause string, arg interface{}) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		args = append(args, arg)
		where += clause + " $" + itoa(len(args))
	}

	if filters.Action != nil {
		addClause("action =", *filters.Action)
	}
	if filters.ResourceType != nil {
		addClause("resource_type =", *filters.ResourceType)
	}
	if filters.StartDate != nil {
		addClause("created_at >=", *filters.StartDate)
	}
	if filters.EndDate != nil {
		addClause("created_at <=", *filters.EndDate)
	}

	query += where + ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.AuditLog, 0)
	for rows.Next() {
		entry := &models.AuditLog{}
		var metadataJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.Action, &entry.ResourceType, &entry.ResourceID,
			&metadataJSON, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
