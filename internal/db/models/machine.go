// machine.go defines the Machine model: an addressable resource that users are
// granted access to via digital keys.
package models

import "time"

// MachineType classifies the kind of resource a machine record represents.
type MachineType string

const (
	MachineTypeServer      MachineType = "server"
	MachineTypeWorkstation MachineType = "workstation"
	MachineTypeIoTDevice   MachineType = "iot-device"
	MachineTypeDatabase    MachineType = "database"
	MachineTypeStorage     MachineType = "storage"
	MachineTypeOther       MachineType = "other"
)

// IsValid reports whether the value is one of the known machine types.
func (t MachineType) IsValid() bool {
	switch t {
	case MachineTypeServer, MachineTypeWorkstation, MachineTypeIoTDevice,
		MachineTypeDatabase, MachineTypeStorage, MachineTypeOther:
		return true
	}
	return false
}

// Machine represents an addressable resource. Name is unique.
type Machine struct {
	ID          int64       `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	MachineType MachineType `json:"machine_type" db:"machine_type"`
	IPAddress   *string     `json:"ip_address,omitempty" db:"ip_address"`
	Description *string     `json:"description,omitempty" db:"description"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}
