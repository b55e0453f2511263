// audit_logs.go implements the audit log listing endpoint with action,
// resource type, and date range filters.
package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/digitalkey/digitalkey/internal/db/repositories"
)

// AuditLogHandlers handles audit log endpoints
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(db *sqlx.DB) *AuditLogHandlers {
	return &AuditLogHandlers{
		auditRepo: repositories.NewAuditRepository(db),
	}
}

// ListAuditLogsHandler lists audit log entries, newest first
// GET /api/v1/audit-logs?action=permission.grant&resource_type=permission&start_date=2026-01-01&end_date=2026-02-01
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		var filters repositories.AuditFilters
		if action := c.Query("action"); action != "" {
			filters.Action = &action
		}
		if resourceType := c.Query("resource_type"); resourceType != "" {
			filters.ResourceType = &resourceType
		}
		if raw := c.Query("start_date"); raw != "" {
			start, err := time.Parse("2006-01-02", raw)
			if err != nil {
				respondValidation(c, "invalid start_date, expected YYYY-MM-DD")
				return
			}
			filters.StartDate = &start
		}
		if raw := c.Query("end_date"); raw != "" {
			end, err := time.Parse("2006-01-02", raw)
			if err != nil {
				respondValidation(c, "invalid end_date, expected YYYY-MM-DD")
				return
			}
			// Inclusive end of day
			end = end.Add(24*time.Hour - time.Nanosecond)
			filters.EndDate = &end
		}

		entries, err := h.auditRepo.List(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": entries,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}
