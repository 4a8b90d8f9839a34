package handlers

import (
	"net/http"
	"strconv"
	"time"

	"clearbill/internal/common"
	"clearbill/internal/models"
	"clearbill/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AuditLogsHandlers handles audit logs related HTTP requests. Routes
// sit behind the admin middleware.
type AuditLogsHandlers struct {
	auditLogsService services.AuditLogsService
}

// NewAuditLogsHandlers creates a new audit logs handlers instance
func NewAuditLogsHandlers(auditLogsService services.AuditLogsService) *AuditLogsHandlers {
	return &AuditLogsHandlers{
		auditLogsService: auditLogsService,
	}
}

// ListAuditLogs retrieves audit logs with filtering and pagination
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	// Parse query parameters
	filters := &models.AuditLogFilters{}
	if table := c.QueryParam("table"); table != "" {
		filters.TableName = &table
	}
	if recordID := c.QueryParam("record_id"); recordID != "" {
		filters.RecordID = &recordID
	}
	if action := c.QueryParam("action"); action != "" {
		filters.Action = &action
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		if uid, err := uuid.Parse(userID); err == nil {
			filters.ChangedBy = &uid
		}
	}
	if startDate := c.QueryParam("start_date"); startDate != "" {
		if sd, err := time.Parse(time.RFC3339, startDate); err == nil {
			filters.StartDate = &sd
		}
	}
	if endDate := c.QueryParam("end_date"); endDate != "" {
		if ed, err := time.Parse(time.RFC3339, endDate); err == nil {
			filters.EndDate = &ed
		}
	}

	// Parse pagination
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 50 // Default limit
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	filters.Limit = limit
	filters.Offset = offset

	if err := h.auditLogsService.ValidateAuditFilters(filters); err != nil {
		return common.SendClientError(c, err.Error())
	}

	logs, err := h.auditLogsService.ListAuditLogs(ctx, filters)
	if err != nil {
		return common.SendServerError(c, "Failed to retrieve audit logs")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   logs,
		"total":  len(logs),
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}
