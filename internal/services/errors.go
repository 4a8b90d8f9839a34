package services

import "errors"

// Operation outcomes form a closed set. Handlers map them to HTTP
// statuses with errors.Is; none of them is retried internally.
var (
	ErrUnauthorized      = errors.New("caller is not permitted to perform this operation")
	ErrInvalidRecipient  = errors.New("recipient identity is invalid")
	ErrSelfAssignment    = errors.New("issuer and recipient must be different parties")
	ErrInvalidAmount     = errors.New("amount must be non-negative")
	ErrDueDateInPast     = errors.New("due date must be in the future")
	ErrInvalidTransition = errors.New("caller's status does not allow this transition")
	ErrNotApproved       = errors.New("invoice is not approved by both parties")
	ErrAmountMismatch    = errors.New("tendered amount does not match the invoice amount")
	ErrTransferFailed    = errors.New("wallet transfer failed")
	ErrInvoiceNotFound   = errors.New("invoice not found")
)
