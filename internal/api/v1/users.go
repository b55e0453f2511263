// users.go implements handlers for user account CRUD operations including
// listing, creating, updating, and deleting users.
package v1

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digitalkey/digitalkey/internal/db/models"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/services"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
	permSvc  *services.PermissionService
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(db *sql.DB, permSvc *services.PermissionService) *UserHandlers {
	return &UserHandlers{
		userRepo: repositories.NewUserRepository(db),
		permSvc:  permSvc,
	}
}

type createUserRequest struct {
	Username string          `json:"username" binding:"required"`
	UserType models.UserType `json:"user_type" binding:"required"`
	Email    string          `json:"email" binding:"required,email"`
}

// CreateUserHandler creates a new user
// POST /api/v1/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}
		if !req.UserType.IsValid() {
			respondValidation(c, "invalid user_type: "+string(req.UserType))
			return
		}

		user := &models.User{
			Username: req.Username,
			UserType: req.UserType,
			Email:    req.Email,
		}
		if err := h.userRepo.Create(c.Request.Context(), user); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

// ListUsersHandler lists users with pagination and an optional type filter
// GET /api/v1/users?page=1&per_page=20&type=operator
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		var userType *models.UserType
		if raw := c.Query("type"); raw != "" {
			t := models.UserType(raw)
			if !t.IsValid() {
				respondValidation(c, "invalid type filter: "+raw)
				return
			}
			userType = &t
		}

		users, err := h.userRepo.List(c.Request.Context(), userType, perPage, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		total, err := h.userRepo.Count(c.Request.Context(), userType)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users":      users,
			"pagination": paginationMeta(page, perPage, total),
		})
	}
}

// GetUserHandler retrieves a user by id
// GET /api/v1/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		user, err := h.userRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// GetUserByUsernameHandler retrieves a user by username
// GET /api/v1/users/username/:username
func (h *UserHandlers) GetUserByUsernameHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetByUsername(c.Request.Context(), c.Param("username"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// UpdateUserHandler updates a user's fields
// PUT /api/v1/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, "invalid request body: "+err.Error())
			return
		}
		if !req.UserType.IsValid() {
			respondValidation(c, "invalid user_type: "+string(req.UserType))
			return
		}

		user := &models.User{
			ID:       id,
			Username: req.Username,
			UserType: req.UserType,
			Email:    req.Email,
		}
		if err := h.userRepo.Update(c.Request.Context(), user); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// DeleteUserHandler deletes a user, honouring the configured delete policy
// DELETE /api/v1/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		if err := h.permSvc.DeleteUser(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}
