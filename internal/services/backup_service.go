// Package services implements higher-level business logic that coordinates
// across multiple repositories and external systems. The permission service,
// for example, orchestrates resolving the referenced user, machine, and key,
// creating the grant, recording the audit entry, and snapshotting the result
// to the backup store — a multi-step operation that spans several domain
// boundaries.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/digitalkey/digitalkey/internal/config"
	"github.com/digitalkey/digitalkey/internal/db/models"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/safego"
	"github.com/digitalkey/digitalkey/internal/storage"
	"github.com/digitalkey/digitalkey/internal/telemetry"
)

// indexFile is the per-prefix manifest of uploaded snapshots.
const indexFile = "index.json"

// backupTimeout bounds each background snapshot write.
const backupTimeout = 30 * time.Second

// SnapshotEntry is one row of a prefix's index.json manifest.
type SnapshotEntry struct {
	ID         int64     `json:"id"`
	File       string    `json:"file"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// BackupService writes JSON snapshots of digital keys and permissions to the
// configured storage backend. Each snapshot upload also updates the prefix's
// index.json manifest, which backs the cloud list and download endpoints.
type BackupService struct {
	store storage.Storage
	cfg   config.BackupConfig

	// mu serializes the read-modify-write cycle on index.json.
	mu sync.Mutex
}

// NewBackupService creates a new BackupService
func NewBackupService(store storage.Storage, cfg config.BackupConfig) *BackupService {
	return &BackupService{store: store, cfg: cfg}
}

// Enabled reports whether backups are turned on in configuration.
func (s *BackupService) Enabled() bool {
	return s.cfg.Enabled && s.store != nil
}

// KeysPrefix returns the storage prefix digital key snapshots live under.
func (s *BackupService) KeysPrefix() string {
	return s.cfg.KeysPrefix
}

// PermissionsPrefix returns the storage prefix permission snapshots live under.
func (s *BackupService) PermissionsPrefix() string {
	return s.cfg.PermissionsPrefix
}

// SnapshotDigitalKey writes a JSON snapshot of the key to
// <keys_prefix>/<id>_<name>.json and records it in the index.
func (s *BackupService) SnapshotDigitalKey(ctx context.Context, key *models.DigitalKey) error {
	if !s.Enabled() {
		return nil
	}
	file := fmt.Sprintf("%d_%s.json", key.ID, key.Name)
	err := s.snapshot(ctx, s.cfg.KeysPrefix, file, key.ID, key)
	s.countWrite("digital_key", err)
	return err
}

// SnapshotPermission writes a JSON snapshot of the permission to
// <permissions_prefix>/permission_<id>.json and records it in the index.
// Revocations and updates overwrite the grant's snapshot, so the stored
// document always reflects the row's latest state.
func (s *BackupService) SnapshotPermission(ctx context.Context, p *models.Permission) error {
	if !s.Enabled() {
		return nil
	}
	file := fmt.Sprintf("permission_%d.json", p.ID)
	err := s.snapshot(ctx, s.cfg.PermissionsPrefix, file, p.ID, p)
	s.countWrite("permission", err)
	return err
}

// ListUploads returns the index entries for a prefix, newest first. A prefix
// with no snapshots yet returns an empty list.
func (s *BackupService) ListUploads(ctx context.Context, prefix string) ([]SnapshotEntry, error) {
	if s.store == nil {
		return []SnapshotEntry{}, nil
	}
	return s.readIndex(ctx, prefix)
}

// OpenSnapshot looks up the snapshot for the given resource id in the prefix's
// index and returns a reader over its contents. Returns
// repositories.ErrNotFound if no snapshot is recorded for the id.
func (s *BackupService) OpenSnapshot(ctx context.Context, prefix string, id int64) (io.ReadCloser, *SnapshotEntry, error) {
	if s.store == nil {
		return nil, nil, repositories.ErrNotFound
	}

	entries, err := s.readIndex(ctx, prefix)
	if err != nil {
		return nil, nil, err
	}

	for i := range entries {
		if entries[i].ID == id {
			rc, err := s.store.Download(ctx, prefix+"/"+entries[i].File)
			if err != nil {
				return nil, nil, err
			}
			return rc, &entries[i], nil
		}
	}

	return nil, nil, repositories.ErrNotFound
}

// SnapshotDigitalKeyAsync writes the key snapshot in the background. Failures
// are logged and counted but never surfaced to the caller: backups must not
// fail API requests.
func (s *BackupService) SnapshotDigitalKeyAsync(key *models.DigitalKey) {
	if !s.Enabled() {
		return
	}
	snapshot := *key
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
		defer cancel()
		if err := s.SnapshotDigitalKey(ctx, &snapshot); err != nil {
			slog.Warn("digital key backup failed", "key_id", snapshot.ID, "error", err)
		}
	})
}

// SnapshotPermissionAsync writes the permission snapshot in the background.
func (s *BackupService) SnapshotPermissionAsync(p *models.Permission) {
	if !s.Enabled() {
		return
	}
	snapshot := *p
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
		defer cancel()
		if err := s.SnapshotPermission(ctx, &snapshot); err != nil {
			slog.Warn("permission backup failed", "permission_id", snapshot.ID, "error", err)
		}
	})
}

func (s *BackupService) snapshot(ctx context.Context, prefix, file string, id int64, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	result, err := s.store.Upload(ctx, prefix+"/"+file, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	entry := SnapshotEntry{
		ID:         id,
		File:       file,
		Size:       result.Size,
		Checksum:   result.Checksum,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.updateIndex(ctx, prefix, entry); err != nil {
		// The snapshot itself landed; a stale index only degrades the list
		// endpoint until the next write.
		slog.Warn("failed to update backup index", "prefix", prefix, "file", file, "error", err)
	}

	return nil
}

func (s *BackupService) readIndex(ctx context.Context, prefix string) ([]SnapshotEntry, error) {
	path := prefix + "/" + indexFile

	exists, err := s.store.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []SnapshotEntry{}, nil
	}

	rc, err := s.store.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var entries []SnapshotEntry
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode backup index: %w", err)
	}
	return entries, nil
}

// updateIndex replaces the prefix's entry for the snapshot's id (or appends a
// new one) and re-uploads the manifest.
func (s *BackupService) updateIndex(ctx context.Context, prefix string, entry SnapshotEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex(ctx, prefix)
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	_, err = s.store.Upload(ctx, prefix+"/"+indexFile, bytes.NewReader(data), int64(len(data)))
	return err
}

func (s *BackupService) countWrite(resource string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.BackupWritesTotal.WithLabelValues(resource, result).Inc()
}
