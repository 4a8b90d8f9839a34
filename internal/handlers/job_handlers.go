package handlers

import (
	"net/http"
	"strconv"
	"time"

	"clearbill/internal/common"
	"clearbill/internal/jobs"
	"clearbill/internal/jobs/background"
	"clearbill/internal/services"

	"github.com/labstack/echo/v4"
)

// JobHandlers exposes background job triggers and status. All routes
// here sit behind the admin middleware.
type JobHandlers struct {
	invoiceService services.InvoiceServiceInterface
	enqueuer       *jobs.Enqueuer
	overdueAlerts  *jobs.OverdueAlertService
	scheduler      *background.JobScheduler
}

func NewJobHandlers(
	invoiceService services.InvoiceServiceInterface,
	enqueuer *jobs.Enqueuer,
	overdueAlerts *jobs.OverdueAlertService,
	scheduler *background.JobScheduler,
) *JobHandlers {
	return &JobHandlers{
		invoiceService: invoiceService,
		enqueuer:       enqueuer,
		overdueAlerts:  overdueAlerts,
		scheduler:      scheduler,
	}
}

// TriggerOverdueSweep handles POST /jobs/overdue-sweep
// Runs the sweep synchronously and reports how many invoices it touched.
func (h *JobHandlers) TriggerOverdueSweep(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	swept, err := h.invoiceService.SweepOverdueInvoices(ctx, caller)
	if err != nil {
		return sendInvoiceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":       "Overdue sweep completed",
		"swept_count":   swept,
		"executed_at":   time.Now().UTC().Format(time.RFC3339),
		"executed_sync": true,
	})
}

// EnqueueOverdueSweep handles POST /jobs/overdue-sweep/enqueue
// Queues the sweep for a background worker instead of running inline.
func (h *JobHandlers) EnqueueOverdueSweep(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	if err := h.enqueuer.EnqueueOverdueSweep(ctx, caller); err != nil {
		return common.SendServerError(c, "Failed to enqueue overdue sweep")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Overdue sweep enqueued",
	})
}

// GetDueDateAlerts handles GET /jobs/due-alerts
func (h *JobHandlers) GetDueDateAlerts(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	windowHours := 72
	if windowParam := c.QueryParam("window_hours"); windowParam != "" {
		if w, err := strconv.Atoi(windowParam); err == nil && w > 0 {
			windowHours = w
		}
	}

	alerts, err := h.overdueAlerts.CheckUpcomingDue(ctx, time.Duration(windowHours)*time.Hour)
	if err != nil {
		return common.SendServerError(c, "Failed to check due date alerts")
	}

	h.overdueAlerts.LogAlerts(ctx, alerts)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"alerts":       alerts,
		"window_hours": windowHours,
	})
}

// GetJobStatus handles GET /jobs/status
func (h *JobHandlers) GetJobStatus(c echo.Context) error {
	if _, ok := common.GetUserIDFromContext(c.Request().Context()); !ok {
		return common.SendUnauthorizedError(c)
	}

	return c.JSON(http.StatusOK, h.scheduler.GetJobStatus())
}
