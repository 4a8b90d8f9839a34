package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"clearbill/internal/caching"
	"clearbill/internal/models"
	"clearbill/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const invoiceCacheTTL = 5 * time.Minute

// CreateInvoiceInput carries the caller-supplied fields of a new invoice.
type CreateInvoiceInput struct {
	IssuerName string
	ClientName string
	Recipient  uuid.UUID
	Amount     int64
	Message    string
	DueDate    time.Time
}

// ModifyInvoiceInput carries the mutable fields an amendment overwrites.
type ModifyInvoiceInput struct {
	ClientName string
	Amount     int64
	Message    string
	DueDate    time.Time
}

// InvoiceAnalytics holds per-party invoice rollup data
type InvoiceAnalytics struct {
	TotalInvoices    int     `json:"total_invoices"`
	PendingInvoices  int     `json:"pending_invoices"`
	ApprovedInvoices int     `json:"approved_invoices"`
	PaidInvoices     int     `json:"paid_invoices"`
	OverdueInvoices  int     `json:"overdue_invoices"`
	RejectedInvoices int     `json:"rejected_invoices"`
	TotalAmount      int64   `json:"total_amount"`
	AvgInvoiceAmount float64 `json:"avg_invoice_amount"`
	CollectionRate   float64 `json:"collection_rate"`
}

// InvoiceServiceInterface defines the interface for invoice service
type InvoiceServiceInterface interface {
	CreateInvoice(ctx context.Context, caller uuid.UUID, input CreateInvoiceInput) (*models.Invoice, error)
	GetInvoiceByID(ctx context.Context, invoiceID int64) (*models.Invoice, error)
	ListInvoicesFor(ctx context.Context, party uuid.UUID, limit, offset int) ([]*models.Invoice, error)
	ListInvoicesForByStatus(ctx context.Context, party uuid.UUID, status models.PartyStatus, limit, offset int) ([]*models.Invoice, error)
	ApproveInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64) (*models.Invoice, error)
	RejectInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64) (*models.Invoice, error)
	ModifyInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64, input ModifyInvoiceInput) (*models.Invoice, error)
	PayInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64, tenderedAmount int64) (*models.Invoice, error)
	SweepOverdueInvoices(ctx context.Context, caller uuid.UUID) (int, error)
	CalculateInvoiceAnalytics(ctx context.Context, party uuid.UUID, startDate, endDate time.Time) (*InvoiceAnalytics, error)
}

type invoiceService struct {
	tx          repositories.TxRunner
	invoiceRepo repositories.InvoiceRepository
	walletRepo  repositories.WalletRepository
	cache       caching.CacheService
	notifier    NotificationService
	clock       clockwork.Clock
	adminID     uuid.UUID
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	tx repositories.TxRunner,
	invoiceRepo repositories.InvoiceRepository,
	walletRepo repositories.WalletRepository,
	cache caching.CacheService,
	notifier NotificationService,
	clock clockwork.Clock,
	adminID uuid.UUID,
) InvoiceServiceInterface {
	return &invoiceService{
		tx:          tx,
		invoiceRepo: invoiceRepo,
		walletRepo:  walletRepo,
		cache:       cache,
		notifier:    notifier,
		clock:       clock,
		adminID:     adminID,
	}
}

// CreateInvoice records a new invoice between the caller and the
// recipient. Creation counts as the issuer's approval, so only the
// recipient's sign-off remains outstanding.
func (s *invoiceService) CreateInvoice(ctx context.Context, caller uuid.UUID, input CreateInvoiceInput) (*models.Invoice, error) {
	if input.Recipient == uuid.Nil {
		return nil, ErrInvalidRecipient
	}
	if input.Recipient == caller {
		return nil, ErrSelfAssignment
	}
	if input.Amount < 0 {
		return nil, ErrInvalidAmount
	}
	now := s.clock.Now()
	if !input.DueDate.After(now) {
		return nil, ErrDueDateInPast
	}

	invoice := &models.Invoice{
		IssuerName:      input.IssuerName,
		ClientName:      input.ClientName,
		Issuer:          caller,
		Recipient:       input.Recipient,
		Amount:          input.Amount,
		Message:         input.Message,
		DueDate:         input.DueDate,
		IssuerStatus:    models.StatusApproved,
		RecipientStatus: models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.tx.RunSerialized(ctx, func(db repositories.Database) error {
		invoices := s.invoiceRepo.WithTx(db)
		if err := invoices.Create(ctx, invoice); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		// Both parties are indexed once, issuer first. The index is
		// append-only; these rows outlive every later status change.
		if err := invoices.AppendParticipant(ctx, invoice.Issuer, invoice.ID); err != nil {
			return fmt.Errorf("index issuer: %w", err)
		}
		if err := invoices.AppendParticipant(ctx, invoice.Recipient, invoice.ID); err != nil {
			return fmt.Errorf("index recipient: %w", err)
		}

		wallets := s.walletRepo.WithTx(db)
		if err := wallets.Ensure(ctx, invoice.Issuer, now); err != nil {
			return fmt.Errorf("ensure issuer wallet: %w", err)
		}
		if err := wallets.Ensure(ctx, invoice.Recipient, now); err != nil {
			return fmt.Errorf("ensure recipient wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PublishInvoiceCreated(ctx, &models.InvoiceCreatedEvent{
		ID:        invoice.ID,
		Issuer:    invoice.Issuer,
		Recipient: invoice.Recipient,
		Amount:    invoice.Amount,
		DueDate:   invoice.DueDate,
	})
	return invoice, nil
}

// GetInvoiceByID returns the stored invoice, or nil when the id was
// never assigned.
func (s *invoiceService) GetInvoiceByID(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	if cached, err := s.cache.GetInvoice(ctx, invoiceID); err == nil && cached != nil {
		return cached, nil
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice != nil {
		if err := s.cache.SetInvoice(ctx, invoice, invoiceCacheTTL); err != nil {
			log.Printf("Failed to cache invoice %d: %v", invoiceID, err)
		}
	}
	return invoice, nil
}

// ListInvoicesFor returns the invoices a party participates in, in the
// order they were indexed.
func (s *invoiceService) ListInvoicesFor(ctx context.Context, party uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	return s.invoiceRepo.ListByParticipant(ctx, party, limit, offset)
}

// ListInvoicesForByStatus narrows the listing to invoices where either
// party currently holds the given status.
func (s *invoiceService) ListInvoicesForByStatus(ctx context.Context, party uuid.UUID, status models.PartyStatus, limit, offset int) ([]*models.Invoice, error) {
	return s.invoiceRepo.ListByParticipantAndStatus(ctx, party, status, limit, offset)
}

// mutateOwnStatus runs the shared path of Approve, Reject and Modify:
// load under lock, check the caller holds a seat, check the caller's
// own status is still pending, apply, persist.
func (s *invoiceService) mutateOwnStatus(ctx context.Context, caller uuid.UUID, invoiceID int64, apply func(invoice *models.Invoice, side models.Side) error) (*models.Invoice, error) {
	var invoice *models.Invoice

	err := s.tx.RunSerialized(ctx, func(db repositories.Database) error {
		invoices := s.invoiceRepo.WithTx(db)

		var err error
		invoice, err = invoices.GetByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return ErrInvoiceNotFound
		}

		side := invoice.SideOf(caller)
		if side == models.SideNone {
			return ErrUnauthorized
		}
		if invoice.StatusOf(side) != models.StatusPending {
			return ErrInvalidTransition
		}

		if err := apply(invoice, side); err != nil {
			return err
		}
		invoice.UpdatedAt = s.clock.Now()
		return invoices.Update(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAndNotify(ctx, invoice)
	return invoice, nil
}

// ApproveInvoice flips the caller's own status from pending to
// approved. The other party's status is not consulted.
func (s *invoiceService) ApproveInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64) (*models.Invoice, error) {
	return s.mutateOwnStatus(ctx, caller, invoiceID, func(invoice *models.Invoice, side models.Side) error {
		invoice.SetStatus(side, models.StatusApproved)
		return nil
	})
}

// RejectInvoice is a unilateral veto: one pending party rejecting
// drives both statuses to rejected, even past the other party's
// approval.
func (s *invoiceService) RejectInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64) (*models.Invoice, error) {
	return s.mutateOwnStatus(ctx, caller, invoiceID, func(invoice *models.Invoice, side models.Side) error {
		invoice.IssuerStatus = models.StatusRejected
		invoice.RecipientStatus = models.StatusRejected
		return nil
	})
}

// ModifyInvoice overwrites the negotiable fields and re-opens the
// approval round: the amending party implicitly approves, the other
// party drops back to pending. A fully rejected invoice never passes
// the pending precondition, so it stays closed for good.
func (s *invoiceService) ModifyInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64, input ModifyInvoiceInput) (*models.Invoice, error) {
	return s.mutateOwnStatus(ctx, caller, invoiceID, func(invoice *models.Invoice, side models.Side) error {
		if input.Amount < 0 {
			return ErrInvalidAmount
		}
		if !input.DueDate.After(s.clock.Now()) {
			return ErrDueDateInPast
		}

		invoice.ClientName = input.ClientName
		invoice.Amount = input.Amount
		invoice.Message = input.Message
		invoice.DueDate = input.DueDate

		invoice.SetStatus(side, models.StatusApproved)
		if side == models.SideIssuer {
			invoice.RecipientStatus = models.StatusPending
		} else {
			invoice.IssuerStatus = models.StatusPending
		}
		return nil
	})
}

// PayInvoice settles a fully approved invoice. The status flip and the
// wallet transfer commit together or not at all.
func (s *invoiceService) PayInvoice(ctx context.Context, caller uuid.UUID, invoiceID int64, tenderedAmount int64) (*models.Invoice, error) {
	var invoice *models.Invoice

	err := s.tx.RunSerialized(ctx, func(db repositories.Database) error {
		invoices := s.invoiceRepo.WithTx(db)

		var err error
		invoice, err = invoices.GetByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return ErrInvoiceNotFound
		}
		if caller != invoice.Recipient {
			return ErrUnauthorized
		}
		if !invoice.FullyApproved() {
			return ErrNotApproved
		}
		if tenderedAmount != invoice.Amount {
			return ErrAmountMismatch
		}

		now := s.clock.Now()
		invoice.RecipientStatus = models.StatusPaid
		invoice.IssuerStatus = models.StatusPaymentReceived
		invoice.UpdatedAt = now
		if err := invoices.UpdateStatuses(ctx, invoice.ID, invoice.IssuerStatus, invoice.RecipientStatus, now); err != nil {
			return err
		}

		wallets := s.walletRepo.WithTx(db)
		if err := wallets.Debit(ctx, invoice.Recipient, tenderedAmount, now); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if err := wallets.Credit(ctx, invoice.Issuer, tenderedAmount, now); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAndNotify(ctx, invoice)
	return invoice, nil
}

// SweepOverdueInvoices re-marks past-due invoices as overdue, in
// ascending id order. Admin only. Returns the number of invoices
// touched.
func (s *invoiceService) SweepOverdueInvoices(ctx context.Context, caller uuid.UUID) (int, error) {
	if caller != s.adminID {
		return 0, ErrUnauthorized
	}

	now := s.clock.Now()
	var swept []*models.Invoice

	err := s.tx.RunSerialized(ctx, func(db repositories.Database) error {
		invoices := s.invoiceRepo.WithTx(db)

		due, err := invoices.ListDueBefore(ctx, now)
		if err != nil {
			return err
		}

		for _, invoice := range due {
			// The guard passes for every recipient status, settled and
			// rejected invoices included: any past-due invoice flips
			// back to overdue. Issuer status is left alone.
			if invoice.RecipientStatus != models.StatusPaid ||
				invoice.RecipientStatus != models.StatusRejected ||
				invoice.RecipientStatus != models.StatusOverdue {
				invoice.RecipientStatus = models.StatusOverdue
				invoice.UpdatedAt = now
				if err := invoices.UpdateStatuses(ctx, invoice.ID, invoice.IssuerStatus, invoice.RecipientStatus, now); err != nil {
					return err
				}
				swept = append(swept, invoice)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, invoice := range swept {
		s.invalidateAndNotify(ctx, invoice)
	}
	return len(swept), nil
}

// CalculateInvoiceAnalytics generates a per-party invoice rollup
func (s *invoiceService) CalculateInvoiceAnalytics(ctx context.Context, party uuid.UUID, startDate, endDate time.Time) (*InvoiceAnalytics, error) {
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end date must not precede start date")
	}

	cacheKey := fmt.Sprintf("clearbill:analytics:%s:%d:%d", party, startDate.Unix(), endDate.Unix())
	if cached, err := s.cache.GetString(ctx, cacheKey); err == nil && cached != "" {
		analytics := &InvoiceAnalytics{}
		if err := json.Unmarshal([]byte(cached), analytics); err == nil {
			return analytics, nil
		}
	}

	invoices, err := s.invoiceRepo.ListByParticipantAndDateRange(ctx, party, startDate, endDate)
	if err != nil {
		return nil, err
	}

	analytics := &InvoiceAnalytics{}
	for _, invoice := range invoices {
		analytics.TotalInvoices++
		analytics.TotalAmount += invoice.Amount

		switch invoice.RecipientStatus {
		case models.StatusPending:
			analytics.PendingInvoices++
		case models.StatusApproved:
			analytics.ApprovedInvoices++
		case models.StatusPaid:
			analytics.PaidInvoices++
		case models.StatusOverdue:
			analytics.OverdueInvoices++
		case models.StatusRejected:
			analytics.RejectedInvoices++
		}
	}

	if analytics.TotalInvoices > 0 {
		analytics.AvgInvoiceAmount = float64(analytics.TotalAmount) / float64(analytics.TotalInvoices)

		settled := analytics.PaidInvoices + analytics.OverdueInvoices
		if settled > 0 {
			analytics.CollectionRate = float64(analytics.PaidInvoices) / float64(settled) * 100
		}
	}

	if data, err := json.Marshal(analytics); err == nil {
		if err := s.cache.SetString(ctx, cacheKey, string(data), 10*time.Minute); err != nil {
			log.Printf("Failed to cache analytics for %s: %v", party, err)
		}
	}
	return analytics, nil
}

// invalidateAndNotify drops the read cache entry and publishes the
// update event. Called after commit, once per mutated invoice, in
// mutation order.
func (s *invoiceService) invalidateAndNotify(ctx context.Context, invoice *models.Invoice) {
	if err := s.cache.DeleteInvoice(ctx, invoice.ID); err != nil {
		log.Printf("Failed to invalidate invoice %d cache: %v", invoice.ID, err)
	}
	s.notifier.PublishInvoiceUpdated(ctx, &models.InvoiceUpdatedEvent{
		ID:              invoice.ID,
		IssuerStatus:    invoice.IssuerStatus,
		RecipientStatus: invoice.RecipientStatus,
	})
}
