// machines.go implements handlers for machine CRUD operations with lookups by
// id and by unique name, plus type and active-state list filters.
package v1

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digitalkey/digitalkey/internal/db/models"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/services"
)

// MachineHandlers handles machine management endpoints
type MachineHandlers struct {
	machineRepo *repositories.MachineRepository
	permSvc     *services.PermissionService
}

// NewMachineHandlers creates a new MachineHandlers instance
func NewMachineHandlers(db *sql.DB, permSvc *services.PermissionService) *MachineHandlers {
	return &MachineHandlers{
		machineRepo: repositories.NewMachineRepository(db),
		permSvc:     permSvc,
	}
}

type createMachineRequest struct {
	Name        string             `json:"name" binding:"required"`
	MachineType models.MachineType `json:"machine_type" binding:"required"`
	IPAddress   *string            `json:"ip_address"`
	Description *string            `json:"description"`
	IsActive    *bool              `json:"is_active"`
}

// CreateMachineHandler creates a new machine
// POST /api/v1/machines
func (h *MachineHandlers) CreateMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMachineRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}
		if !req.MachineType.IsValid() {
			respondValidation(c, "invalid machine_type: "+string(req.MachineType))
			return
		}

		machine := &models.Machine{
			Name:        req.Name,
			MachineType: req.MachineType,
			IPAddress:   req.IPAddress,
			Description: req.Description,
			IsActive:    true,
		}
		if req.IsActive != nil {
			machine.IsActive = *req.IsActive
		}

		if err := h.machineRepo.Create(c.Request.Context(), machine); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, machine)
	}
}

// ListMachinesHandler lists machines with pagination and optional filters
// GET /api/v1/machines?page=1&per_page=20&type=server&active=true
func (h *MachineHandlers) ListMachinesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		var filters repositories.MachineFilters
		if raw := c.Query("type"); raw != "" {
			t := models.MachineType(raw)
			if !t.IsValid() {
				respondValidation(c, "invalid type filter: "+raw)
				return
			}
			filters.MachineType = &t
		}
		if raw := c.Query("active"); raw != "" {
			switch raw {
			case "true":
				active := true
				filters.IsActive = &active
			case "false":
				active := false
				filters.IsActive = &active
			default:
				respondValidation(c, "invalid active filter: "+raw)
				return
			}
		}

		machines, err := h.machineRepo.List(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		total, err := h.machineRepo.Count(c.Request.Context(), filters)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"machines":   machines,
			"pagination": paginationMeta(page, perPage, total),
		})
	}
}

// GetMachineHandler retrieves a machine by id
// GET /api/v1/machines/:id
func (h *MachineHandlers) GetMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		machine, err := h.machineRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, machine)
	}
}

// GetMachineByNameHandler retrieves a machine by its unique name
// GET /api/v1/machines/name/:name
func (h *MachineHandlers) GetMachineByNameHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		machine, err := h.machineRepo.GetByName(c.Request.Context(), c.Param("name"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, machine)
	}
}

// UpdateMachineHandler updates a machine's fields
// PUT /api/v1/machines/:id
func (h *MachineHandlers) UpdateMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req createMachineRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}
		if !req.MachineType.IsValid() {
			respondValidation(c, "invalid machine_type: "+string(req.MachineType))
			return
		}

		machine := &models.Machine{
			ID:          id,
			Name:        req.Name,
			MachineType: req.MachineType,
			IPAddress:   req.IPAddress,
			Description: req.Description,
			IsActive:    true,
		}
		if req.IsActive != nil {
			machine.IsActive = *req.IsActive
		}

		if err := h.machineRepo.Update(c.Request.Context(), machine); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, machine)
	}
}

// DeleteMachineHandler deletes a machine, honouring the configured delete policy
// DELETE /api/v1/machines/:id
func (h *MachineHandlers) DeleteMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		if err := h.permSvc.DeleteMachine(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Machine deleted"})
	}
}
