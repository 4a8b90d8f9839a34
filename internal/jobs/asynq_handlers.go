package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"clearbill/internal/models"
	"clearbill/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type definitions
const (
	TypeOverdueSweep    = "invoice:overdue_sweep"
	TypeWebhookDelivery = "webhook:deliver"
)

// OverdueSweepPayload defines the payload for overdue sweep tasks
type OverdueSweepPayload struct {
	RequestedBy uuid.UUID `json:"requested_by"`
}

// WebhookDeliveryPayload defines the payload for webhook delivery tasks
type WebhookDeliveryPayload struct {
	SubscriptionID string       `json:"subscription_id"`
	Event          models.Event `json:"event"`
}

// NewOverdueSweepTask creates a new overdue sweep task
func NewOverdueSweepTask(requestedBy uuid.UUID) (*asynq.Task, error) {
	payload := OverdueSweepPayload{RequestedBy: requestedBy}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOverdueSweep, data), nil
}

// NewWebhookDeliveryTask creates a new webhook delivery task
func NewWebhookDeliveryTask(subscriptionID string, event *models.Event) (*asynq.Task, error) {
	payload := WebhookDeliveryPayload{
		SubscriptionID: subscriptionID,
		Event:          *event,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWebhookDelivery, data), nil
}

// TaskHandlers processes queued ledger tasks
type TaskHandlers struct {
	invoiceService services.InvoiceServiceInterface
	notifier       services.NotificationService
}

// NewTaskHandlers creates a new task handlers instance
func NewTaskHandlers(invoiceService services.InvoiceServiceInterface, notifier services.NotificationService) *TaskHandlers {
	return &TaskHandlers{
		invoiceService: invoiceService,
		notifier:       notifier,
	}
}

// HandleOverdueSweep handles overdue sweep tasks
func (h *TaskHandlers) HandleOverdueSweep(ctx context.Context, t *asynq.Task) error {
	var payload OverdueSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal sweep payload: %w", err)
	}

	log.Printf("Starting overdue sweep requested by %s", payload.RequestedBy)

	swept, err := h.invoiceService.SweepOverdueInvoices(ctx, payload.RequestedBy)
	if err != nil {
		log.Printf("Overdue sweep failed: %v", err)
		return err
	}

	log.Printf("Overdue sweep completed: %d invoices marked overdue", swept)
	return nil
}

// HandleWebhookDelivery handles webhook delivery tasks
func (h *TaskHandlers) HandleWebhookDelivery(ctx context.Context, t *asynq.Task) error {
	var payload WebhookDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}

	subscription, err := h.notifier.GetWebhookSubscription(ctx, payload.SubscriptionID)
	if err != nil {
		// The subscription may have been deleted after enqueue; not a
		// retryable failure.
		log.Printf("Skipping webhook delivery, subscription %s unavailable: %v", payload.SubscriptionID, err)
		return nil
	}

	if err := h.notifier.SendWebhook(ctx, subscription, &payload.Event); err != nil {
		log.Printf("Webhook delivery to %s failed: %v", subscription.URL, err)
		return err
	}
	return nil
}

// Enqueuer hands tasks to the asynq queue. It implements
// services.WebhookEnqueuer.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates a new task enqueuer
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueOverdueSweep queues an overdue sweep run
func (e *Enqueuer) EnqueueOverdueSweep(ctx context.Context, requestedBy uuid.UUID) error {
	task, err := NewOverdueSweepTask(requestedBy)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	return err
}

// EnqueueWebhookDelivery queues a webhook delivery
func (e *Enqueuer) EnqueueWebhookDelivery(ctx context.Context, subscriptionID string, event *models.Event) error {
	task, err := NewWebhookDeliveryTask(subscriptionID, event)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	return err
}
