package models

import (
	"time"

	"github.com/google/uuid"
)

// PartyStatus is the per-party approval state of an invoice. The issuer
// and the recipient each carry their own status; both live in the same
// value space.
type PartyStatus string

const (
	StatusPending         PartyStatus = "pending"
	StatusApproved        PartyStatus = "approved"
	StatusPaid            PartyStatus = "paid"
	StatusPaymentReceived PartyStatus = "payment_received"
	StatusOverdue         PartyStatus = "overdue"
	StatusRejected        PartyStatus = "rejected"
)

// Side identifies which seat a party occupies on an invoice.
type Side int

const (
	SideNone Side = iota
	SideIssuer
	SideRecipient
)

type Invoice struct {
	ID              int64       `json:"id" db:"id"`
	IssuerName      string      `json:"issuer_name" db:"issuer_name"`
	ClientName      string      `json:"client_name" db:"client_name"`
	Issuer          uuid.UUID   `json:"issuer" db:"issuer"`
	Recipient       uuid.UUID   `json:"recipient" db:"recipient"`
	Amount          int64       `json:"amount" db:"amount"`
	Message         string      `json:"message" db:"message"`
	DueDate         time.Time   `json:"due_date" db:"due_date"`
	IssuerStatus    PartyStatus `json:"issuer_status" db:"issuer_status"`
	RecipientStatus PartyStatus `json:"recipient_status" db:"recipient_status"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// SideOf reports which seat the given identity holds on this invoice,
// or SideNone for strangers.
func (inv *Invoice) SideOf(party uuid.UUID) Side {
	switch party {
	case inv.Issuer:
		return SideIssuer
	case inv.Recipient:
		return SideRecipient
	default:
		return SideNone
	}
}

func (inv *Invoice) StatusOf(side Side) PartyStatus {
	if side == SideIssuer {
		return inv.IssuerStatus
	}
	return inv.RecipientStatus
}

func (inv *Invoice) SetStatus(side Side, status PartyStatus) {
	if side == SideIssuer {
		inv.IssuerStatus = status
	} else {
		inv.RecipientStatus = status
	}
}

// FullyApproved reports whether both parties have signed off, the
// precondition for settlement.
func (inv *Invoice) FullyApproved() bool {
	return inv.IssuerStatus == StatusApproved && inv.RecipientStatus == StatusApproved
}
