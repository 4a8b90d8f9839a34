package services

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

// fakeTxRunner runs the transaction body directly. The serialization
// and rollback behavior belongs to the repository tests.
type fakeTxRunner struct{}

func (f *fakeTxRunner) RunSerialized(ctx context.Context, fn func(db repositories.Database) error) error {
	return fn(nil)
}

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

type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) WithTx(db repositories.Database) repositories.WalletRepository {
	return m
}

func (m *MockWalletRepository) Ensure(ctx context.Context, userID uuid.UUID, now time.Time) error {
	args := m.Called(ctx, userID, now)
	return args.Error(0)
}

func (m *MockWalletRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) error {
	args := m.Called(ctx, userID, amount, now)
	return args.Error(0)
}

func (m *MockWalletRepository) Debit(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) error {
	args := m.Called(ctx, userID, amount, now)
	return args.Error(0)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockCacheService) SetInvoice(ctx context.Context, invoice *models.Invoice, ttl time.Duration) error {
	args := m.Called(ctx, invoice, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockCacheService) SetSession(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	args := m.Called(ctx, sessionID, userID, ttl)
	return args.Error(0)
}

func (m *MockCacheService) GetSession(ctx context.Context, sessionID string) (string, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Error(1)
}

func (m *MockCacheService) DeleteSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheService) GetString(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) {
	m.Called(ctx, event)
}

func (m *MockNotificationService) PublishInvoiceUpdated(ctx context.Context, event *models.InvoiceUpdatedEvent) {
	m.Called(ctx, event)
}

func (m *MockNotificationService) CreateWebhookSubscription(ctx context.Context, subscription *models.WebhookSubscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockNotificationService) UpdateWebhookSubscription(ctx context.Context, subscription *models.WebhookSubscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockNotificationService) DeleteWebhookSubscription(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *MockNotificationService) GetWebhookSubscription(ctx context.Context, subscriptionID string) (*models.WebhookSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookSubscription), args.Error(1)
}

func (m *MockNotificationService) ListWebhookSubscriptions(ctx context.Context) ([]*models.WebhookSubscription, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.WebhookSubscription), args.Error(1)
}

func (m *MockNotificationService) SendWebhook(ctx context.Context, subscription *models.WebhookSubscription, event *models.Event) error {
	args := m.Called(ctx, subscription, event)
	return args.Error(0)
}

type InvoiceServiceTestSuite struct {
	suite.Suite
	mockInvoiceRepo *MockInvoiceRepository
	mockWalletRepo  *MockWalletRepository
	mockCache       *MockCacheService
	mockNotifier    *MockNotificationService
	clock           *clockwork.FakeClock
	service         InvoiceServiceInterface
	adminID         uuid.UUID
	issuerID        uuid.UUID
	recipientID     uuid.UUID
}

func (suite *InvoiceServiceTestSuite) SetupTest() {
	suite.mockInvoiceRepo = &MockInvoiceRepository{}
	suite.mockWalletRepo = &MockWalletRepository{}
	suite.mockCache = &MockCacheService{}
	suite.mockNotifier = &MockNotificationService{}
	suite.clock = clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	suite.adminID = uuid.New()
	suite.issuerID = uuid.New()
	suite.recipientID = uuid.New()

	suite.service = NewInvoiceService(
		&fakeTxRunner{},
		suite.mockInvoiceRepo,
		suite.mockWalletRepo,
		suite.mockCache,
		suite.mockNotifier,
		suite.clock,
		suite.adminID,
	)
}

func (suite *InvoiceServiceTestSuite) TearDownTest() {
	suite.mockInvoiceRepo.AssertExpectations(suite.T())
	suite.mockWalletRepo.AssertExpectations(suite.T())
	suite.mockCache.AssertExpectations(suite.T())
	suite.mockNotifier.AssertExpectations(suite.T())
}

func TestInvoiceServiceTestSuite(t *testing.T) {
	suite.Run(t, new(InvoiceServiceTestSuite))
}

func (suite *InvoiceServiceTestSuite) validCreateInput() CreateInvoiceInput {
	return CreateInvoiceInput{
		IssuerName: "Acme Corp",
		ClientName: "Globex Inc",
		Recipient:  suite.recipientID,
		Amount:     150000,
		Message:    "Q1 consulting",
		DueDate:    suite.clock.Now().Add(30 * 24 * time.Hour),
	}
}

func (suite *InvoiceServiceTestSuite) pendingInvoice(id int64) *models.Invoice {
	return &models.Invoice{
		ID:              id,
		IssuerName:      "Acme Corp",
		ClientName:      "Globex Inc",
		Issuer:          suite.issuerID,
		Recipient:       suite.recipientID,
		Amount:          150000,
		DueDate:         suite.clock.Now().Add(30 * 24 * time.Hour),
		IssuerStatus:    models.StatusApproved,
		RecipientStatus: models.StatusPending,
		CreatedAt:       suite.clock.Now(),
		UpdatedAt:       suite.clock.Now(),
	}
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_Success() {
	ctx := context.Background()
	input := suite.validCreateInput()

	suite.mockInvoiceRepo.On("Create", ctx, mock.AnythingOfType("*models.Invoice")).Return(nil).Run(func(args mock.Arguments) {
		invoice := args.Get(1).(*models.Invoice)
		invoice.ID = 42
		assert.Equal(suite.T(), suite.issuerID, invoice.Issuer)
		assert.Equal(suite.T(), suite.recipientID, invoice.Recipient)
		assert.Equal(suite.T(), models.StatusApproved, invoice.IssuerStatus)
		assert.Equal(suite.T(), models.StatusPending, invoice.RecipientStatus)
	})
	suite.mockInvoiceRepo.On("AppendParticipant", ctx, suite.issuerID, int64(42)).Return(nil)
	suite.mockInvoiceRepo.On("AppendParticipant", ctx, suite.recipientID, int64(42)).Return(nil)
	suite.mockWalletRepo.On("Ensure", ctx, suite.issuerID, suite.clock.Now()).Return(nil)
	suite.mockWalletRepo.On("Ensure", ctx, suite.recipientID, suite.clock.Now()).Return(nil)
	suite.mockNotifier.On("PublishInvoiceCreated", ctx, mock.AnythingOfType("*models.InvoiceCreatedEvent")).Run(func(args mock.Arguments) {
		event := args.Get(1).(*models.InvoiceCreatedEvent)
		assert.Equal(suite.T(), int64(42), event.ID)
		assert.Equal(suite.T(), suite.issuerID, event.Issuer)
		assert.Equal(suite.T(), suite.recipientID, event.Recipient)
	})

	invoice, err := suite.service.CreateInvoice(ctx, suite.issuerID, input)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), invoice)
	assert.Equal(suite.T(), int64(42), invoice.ID)
	assert.Equal(suite.T(), models.StatusApproved, invoice.IssuerStatus)
	assert.Equal(suite.T(), models.StatusPending, invoice.RecipientStatus)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_IndexesIssuerBeforeRecipient() {
	ctx := context.Background()
	input := suite.validCreateInput()

	var appendOrder []uuid.UUID
	suite.mockInvoiceRepo.On("Create", ctx, mock.AnythingOfType("*models.Invoice")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Invoice).ID = 7
	})
	suite.mockInvoiceRepo.On("AppendParticipant", ctx, mock.AnythingOfType("uuid.UUID"), int64(7)).Return(nil).Run(func(args mock.Arguments) {
		appendOrder = append(appendOrder, args.Get(1).(uuid.UUID))
	})
	suite.mockWalletRepo.On("Ensure", ctx, mock.AnythingOfType("uuid.UUID"), suite.clock.Now()).Return(nil)
	suite.mockNotifier.On("PublishInvoiceCreated", ctx, mock.AnythingOfType("*models.InvoiceCreatedEvent"))

	_, err := suite.service.CreateInvoice(ctx, suite.issuerID, input)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), []uuid.UUID{suite.issuerID, suite.recipientID}, appendOrder)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_NilRecipient() {
	input := suite.validCreateInput()
	input.Recipient = uuid.Nil

	invoice, err := suite.service.CreateInvoice(context.Background(), suite.issuerID, input)
	assert.ErrorIs(suite.T(), err, ErrInvalidRecipient)
	assert.Nil(suite.T(), invoice)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_SelfAssignment() {
	input := suite.validCreateInput()
	input.Recipient = suite.issuerID

	invoice, err := suite.service.CreateInvoice(context.Background(), suite.issuerID, input)
	assert.ErrorIs(suite.T(), err, ErrSelfAssignment)
	assert.Nil(suite.T(), invoice)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_NegativeAmount() {
	input := suite.validCreateInput()
	input.Amount = -1

	invoice, err := suite.service.CreateInvoice(context.Background(), suite.issuerID, input)
	assert.ErrorIs(suite.T(), err, ErrInvalidAmount)
	assert.Nil(suite.T(), invoice)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_ZeroAmountAllowed() {
	ctx := context.Background()
	input := suite.validCreateInput()
	input.Amount = 0

	suite.mockInvoiceRepo.On("Create", ctx, mock.AnythingOfType("*models.Invoice")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Invoice).ID = 9
	})
	suite.mockInvoiceRepo.On("AppendParticipant", ctx, mock.AnythingOfType("uuid.UUID"), int64(9)).Return(nil)
	suite.mockWalletRepo.On("Ensure", ctx, mock.AnythingOfType("uuid.UUID"), suite.clock.Now()).Return(nil)
	suite.mockNotifier.On("PublishInvoiceCreated", ctx, mock.AnythingOfType("*models.InvoiceCreatedEvent"))

	invoice, err := suite.service.CreateInvoice(ctx, suite.issuerID, input)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), invoice.Amount)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_DueDateInPast() {
	input := suite.validCreateInput()
	input.DueDate = suite.clock.Now().Add(-time.Hour)

	invoice, err := suite.service.CreateInvoice(context.Background(), suite.issuerID, input)
	assert.ErrorIs(suite.T(), err, ErrDueDateInPast)
	assert.Nil(suite.T(), invoice)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_DueDateExactlyNow() {
	input := suite.validCreateInput()
	input.DueDate = suite.clock.Now()

	invoice, err := suite.service.CreateInvoice(context.Background(), suite.issuerID, input)
	assert.ErrorIs(suite.T(), err, ErrDueDateInPast)
	assert.Nil(suite.T(), invoice)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_RepositoryError() {
	ctx := context.Background()
	input := suite.validCreateInput()

	suite.mockInvoiceRepo.On("Create", ctx, mock.AnythingOfType("*models.Invoice")).Return(errors.New("database connection failed"))

	invoice, err := suite.service.CreateInvoice(ctx, suite.issuerID, input)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), invoice)
	assert.Contains(suite.T(), err.Error(), "database connection failed")
}

func (suite *InvoiceServiceTestSuite) TestGetInvoiceByID_CacheHit() {
	ctx := context.Background()
	cached := suite.pendingInvoice(5)

	suite.mockCache.On("GetInvoice", ctx, int64(5)).Return(cached, nil)

	invoice, err := suite.service.GetInvoiceByID(ctx, 5)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), cached, invoice)
}

func (suite *InvoiceServiceTestSuite) TestGetInvoiceByID_CacheMissPopulatesCache() {
	ctx := context.Background()
	stored := suite.pendingInvoice(5)

	suite.mockCache.On("GetInvoice", ctx, int64(5)).Return((*models.Invoice)(nil), nil)
	suite.mockInvoiceRepo.On("GetByID", ctx, int64(5)).Return(stored, nil)
	suite.mockCache.On("SetInvoice", ctx, stored, invoiceCacheTTL).Return(nil)

	invoice, err := suite.service.GetInvoiceByID(ctx, 5)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), stored, invoice)
}

func (suite *InvoiceServiceTestSuite) TestGetInvoiceByID_UnassignedID() {
	ctx := context.Background()

	suite.mockCache.On("GetInvoice", ctx, int64(999)).Return((*models.Invoice)(nil), nil)
	suite.mockInvoiceRepo.On("GetByID", ctx, int64(999)).Return((*models.Invoice)(nil), nil)

	invoice, err := suite.service.GetInvoiceByID(ctx, 999)
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), invoice)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_RecipientApprovesOwnSeat() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(10)

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(invoice, nil)
	suite.mockInvoiceRepo.On("Update", ctx, invoice).Return(nil)
	suite.mockCache.On("DeleteInvoice", ctx, int64(10)).Return(nil)
	suite.mockNotifier.On("PublishInvoiceUpdated", ctx, mock.AnythingOfType("*models.InvoiceUpdatedEvent"))

	result, err := suite.service.ApproveInvoice(ctx, suite.recipientID, 10)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.StatusApproved, result.RecipientStatus)
	assert.Equal(suite.T(), models.StatusApproved, result.IssuerStatus)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_AlreadyApproved() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(10)
	invoice.RecipientStatus = models.StatusApproved

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(invoice, nil)

	result, err := suite.service.ApproveInvoice(ctx, suite.recipientID, 10)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_Stranger() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(10)

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(invoice, nil)

	result, err := suite.service.ApproveInvoice(ctx, uuid.New(), 10)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_NotFound() {
	ctx := context.Background()

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(404)).Return((*models.Invoice)(nil), nil)

	result, err := suite.service.ApproveInvoice(ctx, suite.recipientID, 404)
	assert.ErrorIs(suite.T(), err, ErrInvoiceNotFound)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestRejectInvoice_VetoOverridesOtherApproval() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(11)
	// Issuer already approved at creation; the recipient's rejection
	// still closes both seats.
	assert.Equal(suite.T(), models.StatusApproved, invoice.IssuerStatus)

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(11)).Return(invoice, nil)
	suite.mockInvoiceRepo.On("Update", ctx, invoice).Return(nil)
	suite.mockCache.On("DeleteInvoice", ctx, int64(11)).Return(nil)
	suite.mockNotifier.On("PublishInvoiceUpdated", ctx, mock.AnythingOfType("*models.InvoiceUpdatedEvent")).Run(func(args mock.Arguments) {
		event := args.Get(1).(*models.InvoiceUpdatedEvent)
		assert.Equal(suite.T(), models.StatusRejected, event.IssuerStatus)
		assert.Equal(suite.T(), models.StatusRejected, event.RecipientStatus)
	})

	result, err := suite.service.RejectInvoice(ctx, suite.recipientID, 11)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.StatusRejected, result.IssuerStatus)
	assert.Equal(suite.T(), models.StatusRejected, result.RecipientStatus)
}

func (suite *InvoiceServiceTestSuite) TestRejectInvoice_CallerNotPending() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(11)

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(11)).Return(invoice, nil)

	// The issuer approved at creation, so their seat is no longer
	// pending and the veto is off the table for them.
	result, err := suite.service.RejectInvoice(ctx, suite.issuerID, 11)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestModifyInvoice_ReopensApprovalRound() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(12)
	input := ModifyInvoiceInput{
		ClientName: "Globex International",
		Amount:     200000,
		Message:    "Revised scope",
		DueDate:    suite.clock.Now().Add(45 * 24 * time.Hour),
	}

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(12)).Return(invoice, nil)
	suite.mockInvoiceRepo.On("Update", ctx, invoice).Return(nil)
	suite.mockCache.On("DeleteInvoice", ctx, int64(12)).Return(nil)
	suite.mockNotifier.On("PublishInvoiceUpdated", ctx, mock.AnythingOfType("*models.InvoiceUpdatedEvent"))

	result, err := suite.service.ModifyInvoice(ctx, suite.recipientID, 12, input)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), input.ClientName, result.ClientName)
	assert.Equal(suite.T(), input.Amount, result.Amount)
	assert.Equal(suite.T(), input.Message, result.Message)
	// The amending recipient implicitly approves; the issuer drops back
	// to pending and has to sign off again.
	assert.Equal(suite.T(), models.StatusApproved, result.RecipientStatus)
	assert.Equal(suite.T(), models.StatusPending, result.IssuerStatus)
}

func (suite *InvoiceServiceTestSuite) TestModifyInvoice_RejectedStaysClosed() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(12)
	invoice.IssuerStatus = models.StatusRejected
	invoice.RecipientStatus = models.StatusRejected
	input := ModifyInvoiceInput{
		ClientName: "Globex International",
		Amount:     200000,
		DueDate:    suite.clock.Now().Add(45 * 24 * time.Hour),
	}

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(12)).Return(invoice, nil)

	result, err := suite.service.ModifyInvoice(ctx, suite.recipientID, 12, input)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestModifyInvoice_NegativeAmount() {
	ctx := context.Background()
	input := ModifyInvoiceInput{
		Amount:  -500,
		DueDate: suite.clock.Now().Add(time.Hour),
	}

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(12)).Return(suite.pendingInvoice(12), nil)

	result, err := suite.service.ModifyInvoice(ctx, suite.recipientID, 12, input)
	assert.ErrorIs(suite.T(), err, ErrInvalidAmount)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestModifyInvoice_DueDateInPast() {
	ctx := context.Background()
	input := ModifyInvoiceInput{
		Amount:  100,
		DueDate: suite.clock.Now().Add(-time.Hour),
	}

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(12)).Return(suite.pendingInvoice(12), nil)

	result, err := suite.service.ModifyInvoice(ctx, suite.recipientID, 12, input)
	assert.ErrorIs(suite.T(), err, ErrDueDateInPast)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestModifyInvoice_StrangerWithBadInputStillUnauthorized() {
	ctx := context.Background()
	input := ModifyInvoiceInput{
		Amount:  100,
		DueDate: suite.clock.Now().Add(-time.Hour),
	}

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(12)).Return(suite.pendingInvoice(12), nil)

	// The seat check comes before field validation, so a stranger never
	// learns whether their payload would have been accepted.
	result, err := suite.service.ModifyInvoice(ctx, uuid.New(), 12, input)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) fullyApprovedInvoice(id int64) *models.Invoice {
	invoice := suite.pendingInvoice(id)
	invoice.RecipientStatus = models.StatusApproved
	return invoice
}

func (suite *InvoiceServiceTestSuite) TestPayInvoice_Success() {
	ctx := context.Background()
	invoice := suite.fullyApprovedInvoice(20)
	now := suite.clock.Now()

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(20)).Return(invoice, nil)
	suite.mockInvoiceRepo.On("UpdateStatuses", ctx, int64(20), models.StatusPaymentReceived, models.StatusPaid, now).Return(nil)
	suite.mockWalletRepo.On("Debit", ctx, suite.recipientID, int64(150000), now).Return(nil)
	suite.mockWalletRepo.On("Credit", ctx, suite.issuerID, int64(150000), now).Return(nil)
	suite.mockCache.On("DeleteInvoice", ctx, int64(20)).Return(nil)
	suite.mockNotifier.On("PublishInvoiceUpdated", ctx, mock.AnythingOfType("*models.InvoiceUpdatedEvent"))

	result, err := suite.service.PayInvoice(ctx, suite.recipientID, 20, 150000)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.StatusPaid, result.RecipientStatus)
	assert.Equal(suite.T(), models.StatusPaymentReceived, result.IssuerStatus)
}

func (suite *InvoiceServiceTestSuite) TestPayInvoice_IssuerCannotPay() {
	ctx := context.Background()
	invoice := suite.fullyApprovedInvoice(20)

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(20)).Return(invoice, nil)

	result, err := suite.service.PayInvoice(ctx, suite.issuerID, 20, 150000)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestPayInvoice_NotFullyApproved() {
	ctx := context.Background()
	invoice := suite.pendingInvoice(20)

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(20)).Return(invoice, nil)

	result, err := suite.service.PayInvoice(ctx, suite.recipientID, 20, 150000)
	assert.ErrorIs(suite.T(), err, ErrNotApproved)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestPayInvoice_AmountMismatch() {
	ctx := context.Background()
	invoice := suite.fullyApprovedInvoice(20)

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(20)).Return(invoice, nil)

	// Settlement is exact-amount only; overpayment is refused the same
	// way underpayment is.
	result, err := suite.service.PayInvoice(ctx, suite.recipientID, 20, 150001)
	assert.ErrorIs(suite.T(), err, ErrAmountMismatch)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestPayInvoice_InsufficientFunds() {
	ctx := context.Background()
	invoice := suite.fullyApprovedInvoice(20)
	now := suite.clock.Now()

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(20)).Return(invoice, nil)
	suite.mockInvoiceRepo.On("UpdateStatuses", ctx, int64(20), models.StatusPaymentReceived, models.StatusPaid, now).Return(nil)
	suite.mockWalletRepo.On("Debit", ctx, suite.recipientID, int64(150000), now).Return(repositories.ErrInsufficientFunds)

	result, err := suite.service.PayInvoice(ctx, suite.recipientID, 20, 150000)
	assert.ErrorIs(suite.T(), err, ErrTransferFailed)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestPayInvoice_NotFound() {
	ctx := context.Background()

	suite.mockInvoiceRepo.On("GetByIDForUpdate", ctx, int64(404)).Return((*models.Invoice)(nil), nil)

	result, err := suite.service.PayInvoice(ctx, suite.recipientID, 404, 150000)
	assert.ErrorIs(suite.T(), err, ErrInvoiceNotFound)
	assert.Nil(suite.T(), result)
}

func (suite *InvoiceServiceTestSuite) TestSweepOverdueInvoices_NonAdmin() {
	count, err := suite.service.SweepOverdueInvoices(context.Background(), suite.issuerID)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)
	assert.Equal(suite.T(), 0, count)
}

func (suite *InvoiceServiceTestSuite) TestSweepOverdueInvoices_MarksEveryPastDueInvoice() {
	ctx := context.Background()
	now := suite.clock.Now()

	pending := suite.pendingInvoice(1)
	pending.DueDate = now.Add(-24 * time.Hour)

	paid := suite.pendingInvoice(2)
	paid.DueDate = now.Add(-48 * time.Hour)
	paid.IssuerStatus = models.StatusPaymentReceived
	paid.RecipientStatus = models.StatusPaid

	rejected := suite.pendingInvoice(3)
	rejected.DueDate = now.Add(-72 * time.Hour)
	rejected.IssuerStatus = models.StatusRejected
	rejected.RecipientStatus = models.StatusRejected

	suite.mockInvoiceRepo.On("ListDueBefore", ctx, now).Return([]*models.Invoice{pending, paid, rejected}, nil)

	var sweptIDs []int64
	suite.mockInvoiceRepo.On("UpdateStatuses", ctx, mock.AnythingOfType("int64"), mock.AnythingOfType("models.PartyStatus"), models.StatusOverdue, now).Return(nil).Run(func(args mock.Arguments) {
		sweptIDs = append(sweptIDs, args.Get(1).(int64))
	})
	suite.mockCache.On("DeleteInvoice", ctx, mock.AnythingOfType("int64")).Return(nil)
	suite.mockNotifier.On("PublishInvoiceUpdated", ctx, mock.AnythingOfType("*models.InvoiceUpdatedEvent"))

	count, err := suite.service.SweepOverdueInvoices(ctx, suite.adminID)
	assert.NoError(suite.T(), err)

	// The sweep re-marks every past-due invoice, settled and rejected
	// ones included, in ascending id order.
	assert.Equal(suite.T(), 3, count)
	assert.Equal(suite.T(), []int64{1, 2, 3}, sweptIDs)
	assert.Equal(suite.T(), models.StatusOverdue, pending.RecipientStatus)
	assert.Equal(suite.T(), models.StatusOverdue, paid.RecipientStatus)
	assert.Equal(suite.T(), models.StatusOverdue, rejected.RecipientStatus)

	// Issuer seats are left alone.
	assert.Equal(suite.T(), models.StatusApproved, pending.IssuerStatus)
	assert.Equal(suite.T(), models.StatusPaymentReceived, paid.IssuerStatus)
	assert.Equal(suite.T(), models.StatusRejected, rejected.IssuerStatus)
}

func (suite *InvoiceServiceTestSuite) TestSweepOverdueInvoices_NothingDue() {
	ctx := context.Background()
	now := suite.clock.Now()

	suite.mockInvoiceRepo.On("ListDueBefore", ctx, now).Return([]*models.Invoice{}, nil)

	count, err := suite.service.SweepOverdueInvoices(ctx, suite.adminID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 0, count)
}

func (suite *InvoiceServiceTestSuite) TestSweepOverdueInvoices_RepositoryError() {
	ctx := context.Background()
	now := suite.clock.Now()

	suite.mockInvoiceRepo.On("ListDueBefore", ctx, now).Return(([]*models.Invoice)(nil), errors.New("database connection failed"))

	count, err := suite.service.SweepOverdueInvoices(ctx, suite.adminID)
	assert.Error(suite.T(), err)
	assert.Equal(suite.T(), 0, count)
}

func (suite *InvoiceServiceTestSuite) TestCalculateInvoiceAnalytics_Rollup() {
	ctx := context.Background()
	start := suite.clock.Now().Add(-90 * 24 * time.Hour)
	end := suite.clock.Now()

	invoices := []*models.Invoice{
		{ID: 1, Amount: 10000, RecipientStatus: models.StatusPaid},
		{ID: 2, Amount: 20000, RecipientStatus: models.StatusPaid},
		{ID: 3, Amount: 30000, RecipientStatus: models.StatusOverdue},
		{ID: 4, Amount: 40000, RecipientStatus: models.StatusPending},
		{ID: 5, Amount: 50000, RecipientStatus: models.StatusRejected},
	}

	suite.mockCache.On("GetString", ctx, mock.AnythingOfType("string")).Return("", nil)
	suite.mockInvoiceRepo.On("ListByParticipantAndDateRange", ctx, suite.issuerID, start, end).Return(invoices, nil)
	suite.mockCache.On("SetString", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("string"), 10*time.Minute).Return(nil)

	analytics, err := suite.service.CalculateInvoiceAnalytics(ctx, suite.issuerID, start, end)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 5, analytics.TotalInvoices)
	assert.Equal(suite.T(), 2, analytics.PaidInvoices)
	assert.Equal(suite.T(), 1, analytics.OverdueInvoices)
	assert.Equal(suite.T(), 1, analytics.PendingInvoices)
	assert.Equal(suite.T(), 1, analytics.RejectedInvoices)
	assert.Equal(suite.T(), int64(150000), analytics.TotalAmount)
	assert.InDelta(suite.T(), 30000.0, analytics.AvgInvoiceAmount, 0.001)
	// Collection rate counts paid against paid plus overdue.
	assert.InDelta(suite.T(), 66.666, analytics.CollectionRate, 0.01)
}

func (suite *InvoiceServiceTestSuite) TestCalculateInvoiceAnalytics_InvertedRange() {
	ctx := context.Background()
	start := suite.clock.Now()
	end := start.Add(-time.Hour)

	analytics, err := suite.service.CalculateInvoiceAnalytics(ctx, suite.issuerID, start, end)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), analytics)
}

func (suite *InvoiceServiceTestSuite) TestListInvoicesFor() {
	ctx := context.Background()
	expected := []*models.Invoice{suite.pendingInvoice(1), suite.pendingInvoice(2)}

	suite.mockInvoiceRepo.On("ListByParticipant", ctx, suite.issuerID, 50, 0).Return(expected, nil)

	invoices, err := suite.service.ListInvoicesFor(ctx, suite.issuerID, 50, 0)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), expected, invoices)
}

func (suite *InvoiceServiceTestSuite) TestListInvoicesForByStatus() {
	ctx := context.Background()
	expected := []*models.Invoice{suite.pendingInvoice(3)}

	suite.mockInvoiceRepo.On("ListByParticipantAndStatus", ctx, suite.issuerID, models.StatusPending, 50, 0).Return(expected, nil)

	invoices, err := suite.service.ListInvoicesForByStatus(ctx, suite.issuerID, models.StatusPending, 50, 0)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), expected, invoices)
}
