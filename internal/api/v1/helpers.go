// Package v1 implements the versioned REST API handlers. Handlers are grouped
// per resource into handler structs that hold their repositories and services;
// the router in internal/api wires them onto the /api/v1 route groups.
//
// Status code conventions: 200/201 on success, 404 for missing resources,
// 409 for conflicts (uniqueness, duplicate active permissions, blocked
// deletes), 422 for request bodies or parameters that fail validation, and
// 500 for everything else.
package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/digitalkey/digitalkey/internal/db/repositories"
)

// respondError translates repository and service errors into HTTP responses.
// Unexpected errors are logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// respondValidation writes a 422 for malformed or invalid request input.
func respondValidation(c *gin.Context, msg string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg})
}

// pathID parses a numeric id path parameter, writing a 422 and returning
// false when it is not a positive integer.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		respondValidation(c, "invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}

// pagination parses page/per_page query parameters with the usual clamping.
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return page, perPage, (page - 1) * perPage
}

// paginationMeta builds the pagination envelope included in list responses.
func paginationMeta(page, perPage, total int) gin.H {
	return gin.H{
		"page":     page,
		"per_page": perPage,
		"total":    total,
	}
}
