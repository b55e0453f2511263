package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digitalkey/digitalkey/internal/config"
	"github.com/digitalkey/digitalkey/internal/db/models"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/telemetry"
)

// PermissionService orchestrates the permission grant/revoke lifecycle: it
// resolves the referenced entities, applies the mutation through the
// repository, records an audit entry, and snapshots the result to the backup
// store. The one-active-permission-per-(user,machine) invariant itself is
// enforced by the database; this layer reports it as a conflict.
type PermissionService struct {
	users    *repositories.UserRepository
	machines *repositories.MachineRepository
	keys     *repositories.DigitalKeyRepository
	perms    *repositories.PermissionRepository
	audits   *repositories.AuditRepository
	backup   *BackupService

	deletePolicy string
}

// NewPermissionService creates a new PermissionService
func NewPermissionService(
	users *repositories.UserRepository,
	machines *repositories.MachineRepository,
	keys *repositories.DigitalKeyRepository,
	perms *repositories.PermissionRepository,
	audits *repositories.AuditRepository,
	backup *BackupService,
	deletePolicy string,
) *PermissionService {
	return &PermissionService{
		users:        users,
		machines:     machines,
		keys:         keys,
		perms:        perms,
		audits:       audits,
		backup:       backup,
		deletePolicy: deletePolicy,
	}
}

// Grant creates a new active permission for the (user, machine) pair using the
// given digital key. All three referenced entities must exist. Returns
// repositories.ErrDuplicateActivePermission if the pair already has an active
// permission.
func (s *PermissionService) Grant(ctx context.Context, userID, machineID, keyID int64, level models.PermissionLevel) (*models.Permission, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		s.countGrant(err)
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	if _, err := s.machines.GetByID(ctx, machineID); err != nil {
		s.countGrant(err)
		return nil, fmt.Errorf("machine %d: %w", machineID, err)
	}
	if _, err := s.keys.GetByID(ctx, keyID); err != nil {
		s.countGrant(err)
		return nil, fmt.Errorf("digital key %d: %w", keyID, err)
	}

	p := &models.Permission{
		UserID:       userID,
		MachineID:    machineID,
		DigitalKeyID: keyID,
		Level:        level,
	}
	if err := s.perms.Create(ctx, p); err != nil {
		s.countGrant(err)
		return nil, err
	}
	s.countGrant(nil)

	s.recordAudit(ctx, "permission.grant", "permission", p.ID, map[string]interface{}{
		"user_id":        userID,
		"machine_id":     machineID,
		"digital_key_id": keyID,
		"level":          level,
	})
	s.backup.SnapshotPermissionAsync(p)

	return p, nil
}

// Revoke deactivates a permission by id. Revoking an already-revoked
// permission returns repositories.ErrConflict; the original revocation time
// is preserved.
func (s *PermissionService) Revoke(ctx context.Context, id int64) (*models.Permission, error) {
	p, err := s.perms.Revoke(ctx, id)
	s.countRevoke(err)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "permission.revoke", "permission", p.ID, map[string]interface{}{
		"user_id":    p.UserID,
		"machine_id": p.MachineID,
	})
	s.backup.SnapshotPermissionAsync(p)

	return p, nil
}

// RevokeByPair deactivates the active permission for a (user, machine) pair.
// Returns repositories.ErrNotFound if the pair has no active permission.
func (s *PermissionService) RevokeByPair(ctx context.Context, userID, machineID int64) (*models.Permission, error) {
	p, err := s.perms.RevokeByPair(ctx, userID, machineID)
	s.countRevoke(err)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "permission.revoke", "permission", p.ID, map[string]interface{}{
		"user_id":    userID,
		"machine_id": machineID,
	})
	s.backup.SnapshotPermissionAsync(p)

	return p, nil
}

// Update writes the permission's level and active flag. Reactivating a revoked
// permission while the pair already has another active one fails with
// repositories.ErrDuplicateActivePermission.
func (s *PermissionService) Update(ctx context.Context, id int64, level models.PermissionLevel, isActive bool) (*models.Permission, error) {
	p, err := s.perms.Update(ctx, id, level, isActive)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "permission.update", "permission", p.ID, map[string]interface{}{
		"level":     level,
		"is_active": isActive,
	})
	s.backup.SnapshotPermissionAsync(p)

	return p, nil
}

// Delete removes a permission row outright, active or not. Revocation is the
// normal way to end a grant; deletion discards the history row as well.
func (s *PermissionService) Delete(ctx context.Context, id int64) error {
	if err := s.perms.Delete(ctx, id); err != nil {
		return err
	}

	s.recordAudit(ctx, "permission.delete", "permission", id, nil)
	return nil
}

// DeleteUser removes a user, honouring the configured delete policy: "block"
// refuses while the user holds active permissions, "cascade" revokes them
// first. Permission rows are removed with the user either way.
func (s *PermissionService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.enforceDeletePolicy(ctx, "user", id); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "user.delete", "user", id, nil)
	return nil
}

// DeleteMachine removes a machine under the configured delete policy.
func (s *PermissionService) DeleteMachine(ctx context.Context, id int64) error {
	if err := s.enforceDeletePolicy(ctx, "machine", id); err != nil {
		return err
	}
	if err := s.machines.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "machine.delete", "machine", id, nil)
	return nil
}

// DeleteDigitalKey removes a digital key under the configured delete policy.
func (s *PermissionService) DeleteDigitalKey(ctx context.Context, id int64) error {
	if err := s.enforceDeletePolicy(ctx, "digital_key", id); err != nil {
		return err
	}
	if err := s.keys.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "digital_key.delete", "digital_key", id, nil)
	return nil
}

// enforceDeletePolicy applies the database.delete_policy setting before an
// entity referenced by permissions is deleted.
func (s *PermissionService) enforceDeletePolicy(ctx context.Context, resource string, id int64) error {
	var (
		active int
		err    error
	)
	switch resource {
	case "user":
		active, err = s.perms.CountActiveByUser(ctx, id)
	case "machine":
		active, err = s.perms.CountActiveByMachine(ctx, id)
	case "digital_key":
		active, err = s.perms.CountActiveByKey(ctx, id)
	default:
		return fmt.Errorf("unknown resource type: %s", resource)
	}
	if err != nil {
		return err
	}
	if active == 0 {
		return nil
	}

	if s.deletePolicy == config.DeletePolicyBlock {
		return fmt.Errorf("%w: %s has %d active permissions", repositories.ErrConflict, resource, active)
	}

	// Cascade: revoke the active permissions so their snapshots and audit
	// trail record the revocation before the rows are removed with the entity.
	return s.revokeAllFor(ctx, resource, id)
}

func (s *PermissionService) revokeAllFor(ctx context.Context, resource string, id int64) error {
	var (
		perms []*models.Permission
		err   error
	)
	switch resource {
	case "user":
		perms, err = s.perms.ListByUser(ctx, id, true)
	case "machine":
		perms, err = s.perms.ListByMachine(ctx, id, true)
	case "digital_key":
		perms, err = s.perms.ListByKey(ctx, id, true)
	}
	if err != nil {
		return err
	}

	for _, p := range perms {
		if _, err := s.Revoke(ctx, p.ID); err != nil && !errors.Is(err, repositories.ErrConflict) {
			return err
		}
	}
	return nil
}

// recordAudit writes an audit entry, logging instead of failing the request
// if the write does not succeed.
func (s *PermissionService) recordAudit(ctx context.Context, action, resourceType string, resourceID int64, metadata map[string]interface{}) {
	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		slog.Warn("failed to write audit entry", "action", action, "resource_id", resourceID, "error", err)
	}
}

func (s *PermissionService) countGrant(err error) {
	telemetry.PermissionGrantsTotal.WithLabelValues(resultLabel(err, "granted")).Inc()
}

func (s *PermissionService) countRevoke(err error) {
	telemetry.PermissionRevocationsTotal.WithLabelValues(resultLabel(err, "revoked")).Inc()
}

func resultLabel(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, repositories.ErrConflict):
		return "conflict"
	case errors.Is(err, repositories.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
