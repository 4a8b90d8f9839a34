package jobs

import (
	"context"
	"log"
	"time"

	"clearbill/internal/models"
	"clearbill/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// OverdueAlertService surfaces invoices that are approaching or past
// their due date without being settled.
type OverdueAlertService struct {
	invoiceRepo repositories.InvoiceRepository
	clock       clockwork.Clock
}

type OverdueAlert struct {
	InvoiceID int64
	Issuer    uuid.UUID
	Recipient uuid.UUID
	Amount    int64
	DueDate   time.Time
	Status    models.PartyStatus
}

func NewOverdueAlertService(invoiceRepo repositories.InvoiceRepository, clock clockwork.Clock) *OverdueAlertService {
	return &OverdueAlertService{
		invoiceRepo: invoiceRepo,
		clock:       clock,
	}
}

// CheckUpcomingDue lists unsettled invoices falling due within the
// given window. Settled and rejected invoices are excluded; the sweep
// owns those.
func (a *OverdueAlertService) CheckUpcomingDue(ctx context.Context, window time.Duration) ([]OverdueAlert, error) {
	if window <= 0 {
		window = 72 * time.Hour
	}

	cutoff := a.clock.Now().Add(window)
	invoices, err := a.invoiceRepo.ListDueBefore(ctx, cutoff)
	if err != nil {
		log.Printf("Failed to list invoices due before %s: %v", cutoff.Format(time.RFC3339), err)
		return nil, err
	}

	var alerts []OverdueAlert
	for _, invoice := range invoices {
		switch invoice.RecipientStatus {
		case models.StatusPaid, models.StatusRejected:
			continue
		}

		alerts = append(alerts, OverdueAlert{
			InvoiceID: invoice.ID,
			Issuer:    invoice.Issuer,
			Recipient: invoice.Recipient,
			Amount:    invoice.Amount,
			DueDate:   invoice.DueDate,
			Status:    invoice.RecipientStatus,
		})
	}

	return alerts, nil
}

func (a *OverdueAlertService) LogAlerts(ctx context.Context, alerts []OverdueAlert) {
	if len(alerts) == 0 {
		log.Println("No due date alerts to log")
		return
	}

	log.Printf("Due date alerts for %d invoices:", len(alerts))
	for _, alert := range alerts {
		log.Printf("- Invoice %d for %d minor units due %s (recipient status: %s)",
			alert.InvoiceID,
			alert.Amount,
			alert.DueDate.Format("2006-01-02"),
			alert.Status)
	}
}

// ScheduledDueCheck runs the alert pass with the default window
func (a *OverdueAlertService) ScheduledDueCheck(ctx context.Context) error {
	log.Println("Starting scheduled due date check")

	alerts, err := a.CheckUpcomingDue(ctx, 72*time.Hour)
	if err != nil {
		log.Printf("Scheduled due date check failed: %v", err)
		return err
	}
	a.LogAlerts(ctx, alerts)

	log.Println("Scheduled due date check completed")
	return nil
}
