package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"clearbill/internal/models"
	"clearbill/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockInvoiceRepository mocks the InvoiceRepository interface for testing
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) WithTx(db repositories.Database) repositories.InvoiceRepository {
	return m
}

func (m *MockInvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) AppendParticipant(ctx context.Context, userID uuid.UUID, invoiceID int64) error {
	args := m.Called(ctx, userID, invoiceID)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GetByID(ctx context.Context, id int64) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) UpdateStatuses(ctx context.Context, id int64, issuerStatus, recipientStatus models.PartyStatus, updatedAt time.Time) error {
	args := m.Called(ctx, id, issuerStatus, recipientStatus, updatedAt)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListByParticipantAndStatus(ctx context.Context, userID uuid.UUID, status models.PartyStatus, limit, offset int) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListByParticipantAndDateRange(ctx context.Context, userID uuid.UUID, startDate, endDate time.Time) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, startDate, endDate)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Invoice, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

type OverdueAlertServiceTestSuite struct {
	suite.Suite
	mockInvoiceRepo *MockInvoiceRepository
	clock           *clockwork.FakeClock
	service         *OverdueAlertService
	issuerID        uuid.UUID
	recipientID     uuid.UUID
}

func (suite *OverdueAlertServiceTestSuite) SetupTest() {
	suite.mockInvoiceRepo = &MockInvoiceRepository{}
	suite.clock = clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	suite.service = NewOverdueAlertService(suite.mockInvoiceRepo, suite.clock)
	suite.issuerID = uuid.New()
	suite.recipientID = uuid.New()
}

func (suite *OverdueAlertServiceTestSuite) TearDownTest() {
	suite.mockInvoiceRepo.AssertExpectations(suite.T())
}

func TestOverdueAlertServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OverdueAlertServiceTestSuite))
}

func (suite *OverdueAlertServiceTestSuite) invoiceWithStatus(id int64, status models.PartyStatus, due time.Time) *models.Invoice {
	return &models.Invoice{
		ID:              id,
		Issuer:          suite.issuerID,
		Recipient:       suite.recipientID,
		Amount:          10000,
		DueDate:         due,
		IssuerStatus:    models.StatusApproved,
		RecipientStatus: status,
	}
}

func (suite *OverdueAlertServiceTestSuite) TestCheckUpcomingDue_FiltersSettledAndRejected() {
	ctx := context.Background()
	window := 72 * time.Hour
	cutoff := suite.clock.Now().Add(window)

	pending := suite.invoiceWithStatus(1, models.StatusPending, suite.clock.Now().Add(24*time.Hour))
	approved := suite.invoiceWithStatus(2, models.StatusApproved, suite.clock.Now().Add(48*time.Hour))
	paid := suite.invoiceWithStatus(3, models.StatusPaid, suite.clock.Now().Add(-24*time.Hour))
	rejected := suite.invoiceWithStatus(4, models.StatusRejected, suite.clock.Now().Add(12*time.Hour))
	overdue := suite.invoiceWithStatus(5, models.StatusOverdue, suite.clock.Now().Add(-48*time.Hour))

	invoices := []*models.Invoice{pending, approved, paid, rejected, overdue}
	suite.mockInvoiceRepo.On("ListDueBefore", ctx, cutoff).Return(invoices, nil).Once()

	alerts, err := suite.service.CheckUpcomingDue(ctx, window)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), alerts, 3)

	assert.Equal(suite.T(), int64(1), alerts[0].InvoiceID)
	assert.Equal(suite.T(), models.StatusPending, alerts[0].Status)
	assert.Equal(suite.T(), int64(2), alerts[1].InvoiceID)
	assert.Equal(suite.T(), int64(5), alerts[2].InvoiceID)
}

func (suite *OverdueAlertServiceTestSuite) TestCheckUpcomingDue_DefaultWindow() {
	ctx := context.Background()
	cutoff := suite.clock.Now().Add(72 * time.Hour)

	suite.mockInvoiceRepo.On("ListDueBefore", ctx, cutoff).Return([]*models.Invoice{}, nil).Once()

	alerts, err := suite.service.CheckUpcomingDue(ctx, 0)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), alerts, 0)
}

func (suite *OverdueAlertServiceTestSuite) TestCheckUpcomingDue_RepositoryError() {
	ctx := context.Background()
	cutoff := suite.clock.Now().Add(72 * time.Hour)

	suite.mockInvoiceRepo.On("ListDueBefore", ctx, cutoff).Return(([]*models.Invoice)(nil), errors.New("database connection failed")).Once()

	alerts, err := suite.service.CheckUpcomingDue(ctx, 72*time.Hour)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), alerts)
	assert.Contains(suite.T(), err.Error(), "database connection failed")
}

func (suite *OverdueAlertServiceTestSuite) TestCheckUpcomingDue_AlertFields() {
	ctx := context.Background()
	window := 24 * time.Hour
	cutoff := suite.clock.Now().Add(window)
	due := suite.clock.Now().Add(12 * time.Hour)

	invoice := suite.invoiceWithStatus(9, models.StatusPending, due)
	invoice.Amount = 250000

	suite.mockInvoiceRepo.On("ListDueBefore", ctx, cutoff).Return([]*models.Invoice{invoice}, nil).Once()

	alerts, err := suite.service.CheckUpcomingDue(ctx, window)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), alerts, 1)
	assert.Equal(suite.T(), int64(9), alerts[0].InvoiceID)
	assert.Equal(suite.T(), suite.issuerID, alerts[0].Issuer)
	assert.Equal(suite.T(), suite.recipientID, alerts[0].Recipient)
	assert.Equal(suite.T(), int64(250000), alerts[0].Amount)
	assert.Equal(suite.T(), due, alerts[0].DueDate)
}

func (suite *OverdueAlertServiceTestSuite) TestLogAlerts_EmptyAlerts() {
	suite.service.LogAlerts(context.Background(), []OverdueAlert{})
}

func (suite *OverdueAlertServiceTestSuite) TestLogAlerts_WithAlerts() {
	alerts := []OverdueAlert{
		{
			InvoiceID: 1,
			Issuer:    suite.issuerID,
			Recipient: suite.recipientID,
			Amount:    10000,
			DueDate:   suite.clock.Now(),
			Status:    models.StatusPending,
		},
	}
	// Logging must not panic regardless of alert content
	suite.service.LogAlerts(context.Background(), alerts)
}

func (suite *OverdueAlertServiceTestSuite) TestScheduledDueCheck() {
	ctx := context.Background()
	cutoff := suite.clock.Now().Add(72 * time.Hour)

	invoice := suite.invoiceWithStatus(1, models.StatusPending, suite.clock.Now().Add(24*time.Hour))
	suite.mockInvoiceRepo.On("ListDueBefore", ctx, cutoff).Return([]*models.Invoice{invoice}, nil).Once()

	err := suite.service.ScheduledDueCheck(ctx)
	assert.NoError(suite.T(), err)
}

func (suite *OverdueAlertServiceTestSuite) TestScheduledDueCheck_PropagatesError() {
	ctx := context.Background()
	cutoff := suite.clock.Now().Add(72 * time.Hour)

	suite.mockInvoiceRepo.On("ListDueBefore", ctx, cutoff).Return(([]*models.Invoice)(nil), errors.New("connection lost")).Once()

	err := suite.service.ScheduledDueCheck(ctx)
	assert.Error(suite.T(), err)
}
