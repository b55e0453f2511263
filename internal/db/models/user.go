// Package models defines the database model types for the digital key service.
// Each type corresponds to a database table and uses struct tags for both JSON
// serialization and sqlx row scanning. Models are pure data types — lifecycle
// logic belongs in the services layer, query logic in the repositories layer.
package models

import "time"

// UserType classifies an account's role within the service.
type UserType string

const (
	UserTypeAdmin    UserType = "admin"
	UserTypeUser     UserType = "user"
	UserTypeOperator UserType = "operator"
	UserTypeViewer   UserType = "viewer"
)

// IsValid reports whether the value is one of the known user types.
func (t UserType) IsValid() bool {
	switch t {
	case UserTypeAdmin, UserTypeUser, UserTypeOperator, UserTypeViewer:
		return true
	}
	return false
}

// User represents an identity record. Username and email are unique.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	UserType  UserType  `json:"user_type" db:"user_type"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
