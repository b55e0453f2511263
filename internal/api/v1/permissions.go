// permissions.go implements handlers for the permission grant/revoke
// lifecycle, per-user and per-machine permission listings, the access summary
// endpoints, and the cloud backup list/download endpoints for permission
// snapshots.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/digitalkey/digitalkey/internal/db/models"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/services"
)

// PermissionHandlers handles permission lifecycle endpoints
type PermissionHandlers struct {
	permRepo *repositories.PermissionRepository
	permSvc  *services.PermissionService
	backup   *services.BackupService
}

// NewPermissionHandlers creates a new PermissionHandlers instance
func NewPermissionHandlers(db *sqlx.DB, permSvc *services.PermissionService, backup *services.BackupService) *PermissionHandlers {
	return &PermissionHandlers{
		permRepo: repositories.NewPermissionRepository(db),
		permSvc:  permSvc,
		backup:   backup,
	}
}

type grantPermissionRequest struct {
	UserID       int64                  `json:"user_id" binding:"required"`
	MachineID    int64                  `json:"machine_id" binding:"required"`
	DigitalKeyID int64                  `json:"digital_key_id" binding:"required"`
	Level        models.PermissionLevel `json:"level" binding:"required"`
}

type updatePermissionRequest struct {
	Level    models.PermissionLevel `json:"level" binding:"required"`
	IsActive *bool                  `json:"is_active" binding:"required"`
}

// GrantPermissionHandler grants a user access to a machine with a digital key
// POST /api/v1/permissions/grant
func (h *PermissionHandlers) GrantPermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req grantPermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}
		if !req.Level.IsValid() {
			respondValidation(c, "invalid level: "+string(req.Level))
			return
		}

		p, err := h.permSvc.Grant(c.Request.Context(), req.UserID, req.MachineID, req.DigitalKeyID, req.Level)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, p)
	}
}

// ListPermissionsHandler lists all permissions, active and revoked
// GET /api/v1/permissions?page=1&per_page=20
func (h *PermissionHandlers) ListPermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		perms, err := h.permRepo.List(c.Request.Context(), perPage, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		total, err := h.permRepo.Count(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"permissions": perms,
			"pagination":  paginationMeta(page, perPage, total),
		})
	}
}

// GetPermissionHandler retrieves a permission by id
// GET /api/v1/permissions/:id
func (h *PermissionHandlers) GetPermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		p, err := h.permRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, p)
	}
}

// ListUserPermissionsHandler lists a user's permissions
// GET /api/v1/permissions/user/:id?active=true
func (h *PermissionHandlers) ListUserPermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		perms, err := h.permRepo.ListByUser(c.Request.Context(), id, c.Query("active") == "true")
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"permissions": perms})
	}
}

// ListMachinePermissionsHandler lists a machine's permissions
// GET /api/v1/permissions/machine/:id?active=true
func (h *PermissionHandlers) ListMachinePermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		perms, err := h.permRepo.ListByMachine(c.Request.Context(), id, c.Query("active") == "true")
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"permissions": perms})
	}
}

// GetPairPermissionHandler retrieves the active permission for a (user,
// machine) pair
// GET /api/v1/permissions/user/:id/machine/:machine_id
func (h *PermissionHandlers) GetPairPermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := pathID(c, "id")
		if !ok {
			return
		}
		machineID, ok := pathID(c, "machine_id")
		if !ok {
			return
		}

		p, err := h.permRepo.GetActiveByPair(c.Request.Context(), userID, machineID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, p)
	}
}

// UpdatePermissionHandler updates a permission's level and active flag
// PUT /api/v1/permissions/:id
func (h *PermissionHandlers) UpdatePermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req updatePermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}
		if !req.Level.IsValid() {
			respondValidation(c, "invalid level: "+string(req.Level))
			return
		}

		p, err := h.permSvc.Update(c.Request.Context(), id, req.Level, *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, p)
	}
}

// RevokePermissionHandler revokes a permission by id
// POST /api/v1/permissions/:id/revoke
func (h *PermissionHandlers) RevokePermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		p, err := h.permSvc.Revoke(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, p)
	}
}

// RevokePairPermissionHandler revokes the active permission for a (user,
// machine) pair
// POST /api/v1/permissions/user/:id/machine/:machine_id/revoke
func (h *PermissionHandlers) RevokePairPermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := pathID(c, "id")
		if !ok {
			return
		}
		machineID, ok := pathID(c, "machine_id")
		if !ok {
			return
		}

		p, err := h.permSvc.RevokeByPair(c.Request.Context(), userID, machineID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, p)
	}
}

// DeletePermissionHandler removes a permission row outright
// DELETE /api/v1/permissions/:id
func (h *PermissionHandlers) DeletePermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		if err := h.permSvc.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Permission deleted"})
	}
}

// UserAccessHandler returns the access summary for a user
// GET /api/v1/permissions/access/user/:id
func (h *PermissionHandlers) UserAccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		summary, err := h.permSvc.UserAccess(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

// MachineAccessHandler returns the access summary for a machine
// GET /api/v1/permissions/access/machine/:id
func (h *PermissionHandlers) MachineAccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		summary, err := h.permSvc.MachineAccess(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

// ListPermissionUploadsHandler lists the permission snapshots in the backup store
// GET /api/v1/permissions/cloud/uploads/list
func (h *PermissionHandlers) ListPermissionUploadsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := h.backup.ListUploads(c.Request.Context(), h.backup.PermissionsPrefix())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"uploads": entries})
	}
}

// DownloadPermissionSnapshotHandler streams a permission's backup snapshot
// GET /api/v1/permissions/cloud/download/:id
func (h *PermissionHandlers) DownloadPermissionSnapshotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		rc, entry, err := h.backup.OpenSnapshot(c.Request.Context(), h.backup.PermissionsPrefix(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		defer rc.Close()

		c.Header("Content-Disposition", `attachment; filename="`+entry.File+`"`)
		c.DataFromReader(http.StatusOK, entry.Size, "application/json", rc, nil)
	}
}
