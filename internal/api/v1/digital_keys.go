// digital_keys.go implements handlers for digital key CRUD operations with
// lookups by unique name and by owner, plus the cloud backup list/download
// endpoints for key snapshots.
package v1

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digitalkey/digitalkey/internal/db/models"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/services"
)

// DigitalKeyHandlers handles digital key management endpoints
type DigitalKeyHandlers struct {
	keyRepo *repositories.DigitalKeyRepository
	permSvc *services.PermissionService
	backup  *services.BackupService
}

// NewDigitalKeyHandlers creates a new DigitalKeyHandlers instance
func NewDigitalKeyHandlers(db *sql.DB, permSvc *services.PermissionService, backup *services.BackupService) *DigitalKeyHandlers {
	return &DigitalKeyHandlers{
		keyRepo: repositories.NewDigitalKeyRepository(db),
		permSvc: permSvc,
		backup:  backup,
	}
}

type createDigitalKeyRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value" binding:"required"`
	Owner string `json:"owner" binding:"required"`
}

// CreateDigitalKeyHandler creates a new digital key and snapshots it to the
// backup store in the background
// POST /api/v1/digital-keys
func (h *DigitalKeyHandlers) CreateDigitalKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createDigitalKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}

		key := &models.DigitalKey{
			Name:  req.Name,
			Value: req.Value,
			Owner: req.Owner,
		}
		if err := h.keyRepo.Create(c.Request.Context(), key); err != nil {
			respondError(c, err)
			return
		}

		h.backup.SnapshotDigitalKeyAsync(key)

		c.JSON(http.StatusCreated, key)
	}
}

// ListDigitalKeysHandler lists digital keys with pagination
// GET /api/v1/digital-keys?page=1&per_page=20
func (h *DigitalKeyHandlers) ListDigitalKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		keys, err := h.keyRepo.List(c.Request.Context(), perPage, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		total, err := h.keyRepo.Count(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"digital_keys": keys,
			"pagination":   paginationMeta(page, perPage, total),
		})
	}
}

// GetDigitalKeyHandler retrieves a digital key by id
// GET /api/v1/digital-keys/:id
func (h *DigitalKeyHandlers) GetDigitalKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		key, err := h.keyRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, key)
	}
}

// GetDigitalKeyByNameHandler retrieves a digital key by its unique name
// GET /api/v1/digital-keys/name/:name
func (h *DigitalKeyHandlers) GetDigitalKeyByNameHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := h.keyRepo.GetByName(c.Request.Context(), c.Param("name"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, key)
	}
}

// ListDigitalKeysByOwnerHandler lists the keys held by an owner label
// GET /api/v1/digital-keys/owner/:owner
func (h *DigitalKeyHandlers) ListDigitalKeysByOwnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.keyRepo.ListByOwner(c.Request.Context(), c.Param("owner"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"digital_keys": keys})
	}
}

// UpdateDigitalKeyHandler updates a digital key and refreshes its backup snapshot
// PUT /api/v1/digital-keys/:id
func (h *DigitalKeyHandlers) UpdateDigitalKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req createDigitalKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}

		key := &models.DigitalKey{
			ID:    id,
			Name:  req.Name,
			Value: req.Value,
			Owner: req.Owner,
		}
		if err := h.keyRepo.Update(c.Request.Context(), key); err != nil {
			respondError(c, err)
			return
		}

		h.backup.SnapshotDigitalKeyAsync(key)

		c.JSON(http.StatusOK, key)
	}
}

// DeleteDigitalKeyHandler deletes a digital key, honouring the configured
// delete policy for keys with active permissions
// DELETE /api/v1/digital-keys/:id
func (h *DigitalKeyHandlers) DeleteDigitalKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		if err := h.permSvc.DeleteDigitalKey(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Digital key deleted"})
	}
}

// ListKeyUploadsHandler lists the key snapshots present in the backup store
// GET /api/v1/digital-keys/cloud/uploads/list
func (h *DigitalKeyHandlers) ListKeyUploadsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := h.backup.ListUploads(c.Request.Context(), h.backup.KeysPrefix())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"uploads": entries})
	}
}

// DownloadKeySnapshotHandler streams a key's backup snapshot
// GET /api/v1/digital-keys/cloud/download/:id
func (h *DigitalKeyHandlers) DownloadKeySnapshotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		rc, entry, err := h.backup.OpenSnapshot(c.Request.Context(), h.backup.KeysPrefix(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		defer rc.Close()

		c.Header("Content-Disposition", `attachment; filename="`+entry.File+`"`)
		c.DataFromReader(http.StatusOK, entry.Size, "application/json", rc, nil)
	}
}
