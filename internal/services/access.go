// access.go computes the per-user and per-machine access summaries. Summaries
// are recomputed from the permission rows on every call; nothing is cached.
package services

import (
	"context"
	"fmt"

	"github.com/digitalkey/digitalkey/internal/db/models"
)

// UserAccessSummary is the per-user view of machine access: which machines the
// user can currently reach, and which grants have been revoked.
type UserAccessSummary struct {
	User    *models.User           `json:"user"`
	Active  []models.MachineAccess `json:"active"`
	Revoked []models.MachineAccess `json:"revoked"`
}

// MachineAccessSummary is the symmetric per-machine view: which users hold
// (or held) access to the machine.
type MachineAccessSummary struct {
	Machine *models.Machine     `json:"machine"`
	Active  []models.UserAccess `json:"active"`
	Revoked []models.UserAccess `json:"revoked"`
}

// UserAccess returns the access summary for a user. Returns
// repositories.ErrNotFound (wrapped) if the user does not exist.
func (s *PermissionService) UserAccess(ctx context.Context, userID int64) (*UserAccessSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}

	rows, err := s.perms.ListMachineAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &UserAccessSummary{
		User:    user,
		Active:  make([]models.MachineAccess, 0),
		Revoked: make([]models.MachineAccess, 0),
	}
	for _, row := range rows {
		if row.RevokedAt == nil {
			summary.Active = append(summary.Active, row)
		} else {
			summary.Revoked = append(summary.Revoked, row)
		}
	}
	return summary, nil
}

// MachineAccess returns the access summary for a machine. Returns
// repositories.ErrNotFound (wrapped) if the machine does not exist.
func (s *PermissionService) MachineAccess(ctx context.Context, machineID int64) (*MachineAccessSummary, error) {
	machine, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return nil, fmt.Errorf("machine %d: %w", machineID, err)
	}

	rows, err := s.perms.ListUserAccess(ctx, machineID)
	if err != nil {
		return nil, err
	}

	summary := &MachineAccessSummary{
		Machine: machine,
		Active:  make([]models.UserAccess, 0),
		Revoked: make([]models.UserAccess, 0),
	}
	for _, row := range rows {
		if row.RevokedAt == nil {
			summary.Active = append(summary.Active, row)
		} else {
			summary.Revoked = append(summary.Revoked, row)
		}
	}
	return summary, nil
}
