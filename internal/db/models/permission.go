// permission.go defines the Permission model and the read-only access summary
// projections computed from it.
package models

import "time"

// PermissionLevel is the access level granted by a permission.
type PermissionLevel string

const (
	PermissionLevelRead    PermissionLevel = "read"
	PermissionLevelWrite   PermissionLevel = "write"
	PermissionLevelExecute PermissionLevel = "execute"
	PermissionLevelAdmin   PermissionLevel = "admin"
)

// IsValid reports whether the value is one of the known permission levels.
func (l PermissionLevel) IsValid() bool {
	switch l {
	case PermissionLevelRead, PermissionLevelWrite, PermissionLevelExecute, PermissionLevelAdmin:
		return true
	}
	return false
}

// Permission represents a user's grant of access to a machine using a digital
// key. At most one ACTIVE row may exist per (user_id, machine_id) pair — the
// permissions_one_active_per_pair partial unique index enforces this at the
// database level. Revoked rows are kept as history; a re-grant creates a new
// row rather than reactivating an old one.
type Permission struct {
	ID           int64           `json:"id" db:"id"`
	UserID       int64           `json:"user_id" db:"user_id"`
	MachineID    int64           `json:"machine_id" db:"machine_id"`
	DigitalKeyID int64           `json:"digital_key_id" db:"digital_key_id"`
	Level        PermissionLevel `json:"level" db:"level"`
	IsActive     bool            `json:"is_active" db:"is_active"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
	RevokedAt    *time.Time      `json:"revoked_at,omitempty" db:"revoked_at"`
}

// MachineAccess is one row of a per-user access summary: a machine the user
// holds (or held) a permission on.
type MachineAccess struct {
	PermissionID int64           `json:"permission_id" db:"permission_id"`
	MachineID    int64           `json:"machine_id" db:"machine_id"`
	MachineName  string          `json:"machine_name" db:"machine_name"`
	MachineType  MachineType     `json:"machine_type" db:"machine_type"`
	Level        PermissionLevel `json:"level" db:"level"`
	GrantedAt    time.Time       `json:"granted_at" db:"granted_at"`
	RevokedAt    *time.Time      `json:"revoked_at,omitempty" db:"revoked_at"`
}

// UserAccess is one row of a per-machine access summary: a user that holds
// (or held) a permission on the machine.
type UserAccess struct {
	PermissionID int64           `json:"permission_id" db:"permission_id"`
	UserID       int64           `json:"user_id" db:"user_id"`
	Username     string          `json:"username" db:"username"`
	UserType     UserType        `json:"user_type" db:"user_type"`
	Level        PermissionLevel `json:"level" db:"level"`
	GrantedAt    time.Time       `json:"granted_at" db:"granted_at"`
	RevokedAt    *time.Time      `json:"revoked_at,omitempty" db:"revoked_at"`
}
