package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"clearbill/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// eventsChannel is the Redis channel every ledger event is published
// on, in mutation order.
const eventsChannel = "clearbill:events"

const webhookSubscriptionSetKey = "clearbill:webhook_subscriptions"

// WebhookEnqueuer hands a webhook delivery to the background queue.
// Implemented by the jobs package; nil means deliveries go out inline.
type WebhookEnqueuer interface {
	EnqueueWebhookDelivery(ctx context.Context, subscriptionID string, event *models.Event) error
}

// NotificationService publishes ledger events and manages webhook
// subscriptions.
type NotificationService interface {
	PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent)
	PublishInvoiceUpdated(ctx context.Context, event *models.InvoiceUpdatedEvent)

	// Webhook subscription management
	CreateWebhookSubscription(ctx context.Context, subscription *models.WebhookSubscription) error
	UpdateWebhookSubscription(ctx context.Context, subscription *models.WebhookSubscription) error
	DeleteWebhookSubscription(ctx context.Context, subscriptionID string) error
	GetWebhookSubscription(ctx context.Context, subscriptionID string) (*models.WebhookSubscription, error)
	ListWebhookSubscriptions(ctx context.Context) ([]*models.WebhookSubscription, error)

	// SendWebhook delivers one event to one subscriber, signing the
	// payload with the subscription secret.
	SendWebhook(ctx context.Context, subscription *models.WebhookSubscription, event *models.Event) error
}

type notificationService struct {
	redisClient *redis.Client
	httpClient  *http.Client
	enqueuer    WebhookEnqueuer
	clock       clockwork.Clock
}

// NewNotificationService creates a new notification service. A nil
// enqueuer means webhook deliveries go out inline.
func NewNotificationService(redisAddr, redisPassword string, redisDB int, enqueuer WebhookEnqueuer, clock clockwork.Clock) NotificationService {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	return &notificationService{
		redisClient: redisClient,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		enqueuer:    enqueuer,
		clock:       clock,
	}
}

// newEvent stamps an envelope with the injected clock so event times
// line up with the mutation times recorded by the services.
func (s *notificationService) newEvent(eventType string, data interface{}) *models.Event {
	return &models.Event{
		Type:       eventType,
		Data:       data,
		OccurredAt: s.clock.Now(),
	}
}

func (s *notificationService) PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) {
	s.publish(ctx, s.newEvent(models.EventInvoiceCreated, event))
}

func (s *notificationService) PublishInvoiceUpdated(ctx context.Context, event *models.InvoiceUpdatedEvent) {
	s.publish(ctx, s.newEvent(models.EventInvoiceUpdated, event))
}

// publish is best-effort: the mutation has already committed, so a
// failed delivery is logged, never surfaced to the caller.
func (s *notificationService) publish(ctx context.Context, event *models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event.Type, err)
		return
	}

	if err := s.redisClient.Publish(ctx, eventsChannel, payload).Err(); err != nil {
		log.Printf("Failed to publish %s event: %v", event.Type, err)
	}

	s.fanOut(ctx, event)
}

func (s *notificationService) fanOut(ctx context.Context, event *models.Event) {
	subscriptions, err := s.ListWebhookSubscriptions(ctx)
	if err != nil {
		log.Printf("Failed to list webhook subscriptions: %v", err)
		return
	}

	for _, subscription := range subscriptions {
		if !subscription.IsActive || !subscribedTo(subscription, event.Type) {
			continue
		}
		if s.enqueuer != nil {
			if err := s.enqueuer.EnqueueWebhookDelivery(ctx, subscription.ID, event); err != nil {
				log.Printf("Failed to enqueue webhook delivery to %s: %v", subscription.ID, err)
			}
			continue
		}
		if err := s.SendWebhook(ctx, subscription, event); err != nil {
			log.Printf("Failed to deliver webhook to %s: %v", subscription.URL, err)
		}
	}
}

func subscribedTo(subscription *models.WebhookSubscription, eventType string) bool {
	if len(subscription.Events) == 0 {
		return true
	}
	for _, e := range subscription.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// SendWebhook sends a webhook notification
func (s *notificationService) SendWebhook(ctx context.Context, subscription *models.WebhookSubscription, event *models.Event) error {
	if !subscription.IsActive {
		return nil // Skip inactive webhooks
	}

	jsonPayload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", subscription.URL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signPayload(subscription.Secret, jsonPayload))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned non-success status: %d", resp.StatusCode)
	}
	return nil
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Webhook subscription management methods
func (s *notificationService) CreateWebhookSubscription(ctx context.Context, subscription *models.WebhookSubscription) error {
	subscription.ID = uuid.NewString()
	subscription.CreatedAt = s.clock.Now()
	subscription.UpdatedAt = s.clock.Now()

	if err := s.storeWebhookSubscription(ctx, subscription); err != nil {
		return err
	}
	return s.redisClient.SAdd(ctx, webhookSubscriptionSetKey, subscription.ID).Err()
}

func (s *notificationService) UpdateWebhookSubscription(ctx context.Context, subscription *models.WebhookSubscription) error {
	subscription.UpdatedAt = s.clock.Now()
	return s.storeWebhookSubscription(ctx, subscription)
}

func (s *notificationService) DeleteWebhookSubscription(ctx context.Context, subscriptionID string) error {
	if err := s.redisClient.SRem(ctx, webhookSubscriptionSetKey, subscriptionID).Err(); err != nil {
		return err
	}
	return s.redisClient.Del(ctx, webhookSubscriptionKey(subscriptionID)).Err()
}

func (s *notificationService) GetWebhookSubscription(ctx context.Context, subscriptionID string) (*models.WebhookSubscription, error) {
	data, err := s.redisClient.Get(ctx, webhookSubscriptionKey(subscriptionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("webhook subscription not found")
		}
		return nil, fmt.Errorf("failed to get webhook subscription: %v", err)
	}

	var subscription models.WebhookSubscription
	if err := json.Unmarshal(data, &subscription); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook subscription: %v", err)
	}
	return &subscription, nil
}

func (s *notificationService) ListWebhookSubscriptions(ctx context.Context) ([]*models.WebhookSubscription, error) {
	ids, err := s.redisClient.SMembers(ctx, webhookSubscriptionSetKey).Result()
	if err != nil {
		return nil, err
	}

	var subscriptions []*models.WebhookSubscription
	for _, id := range ids {
		subscription, err := s.GetWebhookSubscription(ctx, id)
		if err != nil {
			log.Printf("Skipping unreadable webhook subscription %s: %v", id, err)
			continue
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, nil
}

func (s *notificationService) storeWebhookSubscription(ctx context.Context, subscription *models.WebhookSubscription) error {
	data, err := json.Marshal(subscription)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook subscription: %v", err)
	}
	return s.redisClient.Set(ctx, webhookSubscriptionKey(subscription.ID), data, 0).Err()
}

func webhookSubscriptionKey(subscriptionID string) string {
	return fmt.Sprintf("clearbill:webhook_subscription:%s", subscriptionID)
}
