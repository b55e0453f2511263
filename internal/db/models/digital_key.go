// digital_key.go defines the DigitalKey model: the credential a permission
// grant is issued against.
package models

import "time"

// DigitalKey represents a credential record. Name and value are unique.
// Owner is a free-text label, not a foreign key to users.
type DigitalKey struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Value     string    `json:"value" db:"value"`
	Owner     string    `json:"owner" db:"owner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
