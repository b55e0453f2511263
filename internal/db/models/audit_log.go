// audit_log.go defines the AuditLog model for recording permission lifecycle
// events and entity deletions, capturing action, affected resource, and
// arbitrary metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking mutations
type AuditLog struct {
	ID           int64                  `json:"id" db:"id"`
	Action       string                 `json:"action" db:"action"` // "permission.grant", "permission.revoke", "user.delete"
	ResourceType string                 `json:"resource_type" db:"resource_type"`
	ResourceID   int64                  `json:"resource_id" db:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"-"` // JSONB: additional context
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}
