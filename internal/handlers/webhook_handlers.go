package handlers

import (
	"net/http"

	"clearbill/internal/common"
	"clearbill/internal/models"
	"clearbill/internal/services"

	"github.com/labstack/echo/v4"
)

// WebhookHandlers manages webhook subscription CRUD. Subscribers
// receive ledger events signed with their per-subscription secret.
type WebhookHandlers struct {
	notificationService services.NotificationService
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(notificationService services.NotificationService) *WebhookHandlers {
	return &WebhookHandlers{notificationService: notificationService}
}

// CreateSubscription handles POST /webhooks/subscriptions
func (h *WebhookHandlers) CreateSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		Name   string   `json:"name"`
		URL    string   `json:"url"`
		Secret string   `json:"secret"`
		Events []string `json:"events"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	if err := common.ValidateRequiredString(req.URL, "url"); err != nil {
		return common.SendValidationError(c, "url", err.Error())
	}
	if err := common.ValidateRequiredString(req.Secret, "secret"); err != nil {
		return common.SendValidationError(c, "secret", err.Error())
	}

	subscription := &models.WebhookSubscription{
		Name:     req.Name,
		URL:      req.URL,
		Secret:   req.Secret,
		Events:   req.Events,
		IsActive: true,
	}
	if err := h.notificationService.CreateWebhookSubscription(ctx, subscription); err != nil {
		return common.SendServerError(c, "Failed to create webhook subscription: "+err.Error())
	}

	return c.JSON(http.StatusCreated, subscription)
}

// ListSubscriptions handles GET /webhooks/subscriptions
func (h *WebhookHandlers) ListSubscriptions(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	subscriptions, err := h.notificationService.ListWebhookSubscriptions(ctx)
	if err != nil {
		return common.SendServerError(c, "Failed to list webhook subscriptions: "+err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"subscriptions": subscriptions,
	})
}

// GetSubscription handles GET /webhooks/subscriptions/:id
func (h *WebhookHandlers) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	subscription, err := h.notificationService.GetWebhookSubscription(ctx, c.Param("id"))
	if err != nil {
		return common.SendNotFoundError(c, "Webhook subscription")
	}

	return c.JSON(http.StatusOK, subscription)
}

// UpdateSubscription handles PUT /webhooks/subscriptions/:id
func (h *WebhookHandlers) UpdateSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	subscription, err := h.notificationService.GetWebhookSubscription(ctx, c.Param("id"))
	if err != nil {
		return common.SendNotFoundError(c, "Webhook subscription")
	}

	var req struct {
		Name     *string   `json:"name"`
		URL      *string   `json:"url"`
		Secret   *string   `json:"secret"`
		Events   *[]string `json:"events"`
		IsActive *bool     `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	if req.Name != nil {
		subscription.Name = *req.Name
	}
	if req.URL != nil {
		subscription.URL = *req.URL
	}
	if req.Secret != nil {
		subscription.Secret = *req.Secret
	}
	if req.Events != nil {
		subscription.Events = *req.Events
	}
	if req.IsActive != nil {
		subscription.IsActive = *req.IsActive
	}

	if err := h.notificationService.UpdateWebhookSubscription(ctx, subscription); err != nil {
		return common.SendServerError(c, "Failed to update webhook subscription: "+err.Error())
	}

	return c.JSON(http.StatusOK, subscription)
}

// DeleteSubscription handles DELETE /webhooks/subscriptions/:id
func (h *WebhookHandlers) DeleteSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	if err := h.notificationService.DeleteWebhookSubscription(ctx, c.Param("id")); err != nil {
		return common.SendServerError(c, "Failed to delete webhook subscription: "+err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Webhook subscription deleted",
	})
}
