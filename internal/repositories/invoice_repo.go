package repositories

import (
	"context"
	"errors"
	"time"

	"clearbill/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const invoiceColumns = `id, issuer_name, client_name, issuer, recipient, amount, message, due_date, issuer_status, recipient_status, created_at, updated_at`

type InvoiceRepository interface {
	// WithTx returns a copy of the repository bound to the given
	// transaction (or any other query surface).
	WithTx(db Database) InvoiceRepository

	Create(ctx context.Context, invoice *models.Invoice) error
	AppendParticipant(ctx context.Context, userID uuid.UUID, invoiceID int64) error
	GetByID(ctx context.Context, id int64) (*models.Invoice, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Invoice, error)
	Update(ctx context.Context, invoice *models.Invoice) error
	UpdateStatuses(ctx context.Context, id int64, issuerStatus, recipientStatus models.PartyStatus, updatedAt time.Time) error
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error)
	ListByParticipantAndStatus(ctx context.Context, userID uuid.UUID, status models.PartyStatus, limit, offset int) ([]*models.Invoice, error)
	ListByParticipantAndDateRange(ctx context.Context, userID uuid.UUID, startDate, endDate time.Time) ([]*models.Invoice, error)
	ListDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Invoice, error)
}

type invoiceRepo struct {
	db Database
}

func NewInvoiceRepo(db Database) InvoiceRepository {
	return &invoiceRepo{db: db}
}

func (r *invoiceRepo) WithTx(db Database) InvoiceRepository {
	return &invoiceRepo{db: db}
}

// Create inserts the invoice and fills in the database-assigned id.
// Ids come from a BIGSERIAL sequence, so creation order is preserved
// and ids are never reused.
func (r *invoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (issuer_name, client_name, issuer, recipient, amount, message, due_date, issuer_status, recipient_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	return r.db.QueryRow(ctx, query,
		invoice.IssuerName, invoice.ClientName, invoice.Issuer, invoice.Recipient,
		invoice.Amount, invoice.Message, invoice.DueDate,
		invoice.IssuerStatus, invoice.RecipientStatus,
		invoice.CreatedAt, invoice.UpdatedAt,
	).Scan(&invoice.ID)
}

// AppendParticipant adds one row to the append-only participant index.
// Rows are never updated or removed; the position sequence fixes the
// append order a listing replays.
func (r *invoiceRepo) AppendParticipant(ctx context.Context, userID uuid.UUID, invoiceID int64) error {
	query := `INSERT INTO invoice_participants (user_id, invoice_id) VALUES ($1, $2)`
	_, err := r.db.Exec(ctx, query, userID, invoiceID)
	return err
}

// GetByID returns the invoice, or (nil, nil) when the id is unassigned.
func (r *invoiceRepo) GetByID(ctx context.Context, id int64) (*models.Invoice, error) {
	return r.getByID(ctx, id, "")
}

// GetByIDForUpdate is GetByID with a row lock, for use inside a
// mutating transaction.
func (r *invoiceRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.Invoice, error) {
	return r.getByID(ctx, id, " FOR UPDATE")
}

func (r *invoiceRepo) getByID(ctx context.Context, id int64, suffix string) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1` + suffix
	err := r.db.QueryRow(ctx, query, id).Scan(
		&invoice.ID, &invoice.IssuerName, &invoice.ClientName, &invoice.Issuer, &invoice.Recipient,
		&invoice.Amount, &invoice.Message, &invoice.DueDate,
		&invoice.IssuerStatus, &invoice.RecipientStatus,
		&invoice.CreatedAt, &invoice.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// Update overwrites the mutable invoice fields. Identity fields and
// created_at are never touched.
func (r *invoiceRepo) Update(ctx context.Context, invoice *models.Invoice) error {
	query := `
		UPDATE invoices
		SET client_name = $1, amount = $2, message = $3, due_date = $4, issuer_status = $5, recipient_status = $6, updated_at = $7
		WHERE id = $8
	`
	_, err := r.db.Exec(ctx, query,
		invoice.ClientName, invoice.Amount, invoice.Message, invoice.DueDate,
		invoice.IssuerStatus, invoice.RecipientStatus, invoice.UpdatedAt, invoice.ID,
	)
	return err
}

func (r *invoiceRepo) UpdateStatuses(ctx context.Context, id int64, issuerStatus, recipientStatus models.PartyStatus, updatedAt time.Time) error {
	query := `
		UPDATE invoices
		SET issuer_status = $1, recipient_status = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.Exec(ctx, query, issuerStatus, recipientStatus, updatedAt, id)
	return err
}

// ListByParticipant returns the invoices a party is indexed on, in
// index append order.
func (r *invoiceRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumnsPrefixed + `
		FROM invoice_participants p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE p.user_id = $1
		ORDER BY p.position ASC
		LIMIT $2 OFFSET $3
	`
	return r.queryInvoices(ctx, query, userID, limit, offset)
}

func (r *invoiceRepo) ListByParticipantAndStatus(ctx context.Context, userID uuid.UUID, status models.PartyStatus, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumnsPrefixed + `
		FROM invoice_participants p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE p.user_id = $1 AND (i.issuer_status = $2 OR i.recipient_status = $2)
		ORDER BY p.position ASC
		LIMIT $3 OFFSET $4
	`
	return r.queryInvoices(ctx, query, userID, status, limit, offset)
}

func (r *invoiceRepo) ListByParticipantAndDateRange(ctx context.Context, userID uuid.UUID, startDate, endDate time.Time) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumnsPrefixed + `
		FROM invoice_participants p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE p.user_id = $1 AND i.created_at BETWEEN $2 AND $3
		ORDER BY p.position ASC
	`
	return r.queryInvoices(ctx, query, userID, startDate, endDate)
}

// ListDueBefore returns every invoice whose due date has passed the
// cutoff, in ascending id order. The sweep applies its own status
// guard on top.
func (r *invoiceRepo) ListDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE due_date < $1
		ORDER BY id ASC
	`
	return r.queryInvoices(ctx, query, cutoff)
}

const invoiceColumnsPrefixed = `i.id, i.issuer_name, i.client_name, i.issuer, i.recipient, i.amount, i.message, i.due_date, i.issuer_status, i.recipient_status, i.created_at, i.updated_at`

func (r *invoiceRepo) queryInvoices(ctx context.Context, query string, args ...any) ([]*models.Invoice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice := &models.Invoice{}
		if err := rows.Scan(
			&invoice.ID, &invoice.IssuerName, &invoice.ClientName, &invoice.Issuer, &invoice.Recipient,
			&invoice.Amount, &invoice.Message, &invoice.DueDate,
			&invoice.IssuerStatus, &invoice.RecipientStatus,
			&invoice.CreatedAt, &invoice.UpdatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}
