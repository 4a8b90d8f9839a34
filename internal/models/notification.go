package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the ledger channel and delivered to webhooks.
const (
	EventInvoiceCreated = "invoice.created"
	EventInvoiceUpdated = "invoice.updated"
)

// Event is the envelope placed on the Redis channel and posted to
// webhook subscribers. Data is one of the *Event payloads below.
type Event struct {
	Type       string      `json:"type"`
	Data       interface{} `json:"data"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// InvoiceCreatedEvent is emitted once per successful creation.
type InvoiceCreatedEvent struct {
	ID        int64     `json:"id"`
	Issuer    uuid.UUID `json:"issuer"`
	Recipient uuid.UUID `json:"recipient"`
	Amount    int64     `json:"amount"`
	DueDate   time.Time `json:"due_date"`
}

// InvoiceUpdatedEvent is emitted after every successful mutation of an
// existing invoice, carrying the resulting status pair.
type InvoiceUpdatedEvent struct {
	ID              int64       `json:"id"`
	IssuerStatus    PartyStatus `json:"issuer_status"`
	RecipientStatus PartyStatus `json:"recipient_status"`
}

// WebhookSubscription represents external webhook subscriptions
type WebhookSubscription struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSONB represents PostgreSQL JSONB type
type JSONB map[string]interface{}
