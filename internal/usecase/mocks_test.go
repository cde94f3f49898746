package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/lexinote/payment-service/internal/domain/model"
	"github.com/lexinote/payment-service/internal/domain/repository"
	"github.com/lexinote/payment-service/internal/infrastructure/chain"
)

// MockPaymentRepository is a mock implementation of PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*model.Payment, error) {
	args := m.Called(ctx, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByTransactionHash(ctx context.Context, txHash string) (*model.Payment, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) List(ctx context.Context, filters repository.PaymentFilters) ([]*model.Payment, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status model.PaymentStatus, update repository.StatusUpdate) (bool, error) {
	args := m.Called(ctx, paymentID, status, update)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) LinkSubscription(ctx context.Context, paymentID uuid.UUID, subscriptionID string) error {
	args := m.Called(ctx, paymentID, subscriptionID)
	return args.Error(0)
}

func (m *MockPaymentRepository) LinkPointsTransaction(ctx context.Context, paymentID uuid.UUID, pointsTxnID string) error {
	args := m.Called(ctx, paymentID, pointsTxnID)
	return args.Error(0)
}

func (m *MockPaymentRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockPaymentRepository) ManualConfirm(ctx context.Context, paymentID uuid.UUID, adminID, notes string) error {
	args := m.Called(ctx, paymentID, adminID, notes)
	return args.Error(0)
}

// MockPendingTransactionRepository is a mock implementation of PendingTransactionRepository
type MockPendingTransactionRepository struct {
	mock.Mock
}

func (m *MockPendingTransactionRepository) Add(ctx context.Context, entry *model.PendingTransaction) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockPendingTransactionRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.PendingTransaction, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PendingTransaction), args.Error(1)
}

func (m *MockPendingTransactionRepository) ListByStatus(ctx context.Context, status model.QueueStatus, limit int) ([]*model.PendingTransaction, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PendingTransaction), args.Error(1)
}

func (m *MockPendingTransactionRepository) Update(ctx context.Context, paymentID uuid.UUID, update repository.QueueUpdate) error {
	args := m.Called(ctx, paymentID, update)
	return args.Error(0)
}

func (m *MockPendingTransactionRepository) RemoveByPaymentID(ctx context.Context, paymentID uuid.UUID) error {
	args := m.Called(ctx, paymentID)
	return args.Error(0)
}

func (m *MockPendingTransactionRepository) RemoveByPaymentIDs(ctx context.Context, paymentIDs []uuid.UUID) error {
	args := m.Called(ctx, paymentIDs)
	return args.Error(0)
}

// MockWalletAddressRepository is a mock implementation of WalletAddressRepository
type MockWalletAddressRepository struct {
	mock.Mock
}

func (m *MockWalletAddressRepository) RegisterUsage(ctx context.Context, userID, address string, amountUSDT decimal.Decimal) (*model.WalletAddress, error) {
	args := m.Called(ctx, userID, address, amountUSDT)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WalletAddress), args.Error(1)
}

func (m *MockWalletAddressRepository) GetUserWallets(ctx context.Context, userID string) ([]*model.WalletAddress, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WalletAddress), args.Error(1)
}

// MockChainReader is a mock implementation of chain.Reader
type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) GetTransaction(ctx context.Context, txHash string) (*chain.Transaction, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Transaction), args.Error(1)
}

func (m *MockChainReader) GetReceipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Receipt), args.Error(1)
}

func (m *MockChainReader) GetConfirmations(ctx context.Context, txHash string) (int64, error) {
	args := m.Called(ctx, txHash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChainReader) FindTransfer(ctx context.Context, params chain.FindTransferParams) (*chain.TransferMatch, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.TransferMatch), args.Error(1)
}

func (m *MockChainReader) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockChainReader) GetCurrentBlock(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockSubscriptionService is a mock implementation of SubscriptionService
type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) CreateOrUpgrade(ctx context.Context, userID, plan string, durationMonths int, paymentID string) (string, error) {
	args := m.Called(ctx, userID, plan, durationMonths, paymentID)
	return args.String(0), args.Error(1)
}

// MockPointsService is a mock implementation of PointsService
type MockPointsService struct {
	mock.Mock
}

func (m *MockPointsService) AddPoints(ctx context.Context, userID string, amount int64, reason string, metadata map[string]interface{}) (string, error) {
	args := m.Called(ctx, userID, amount, reason, metadata)
	return args.String(0), args.Error(1)
}

// recordingNotifier captures status notifications for assertions
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.PaymentStatus
}

func (n *recordingNotifier) NotifyStatusChange(payment *model.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, payment.Status)
}

func (n *recordingNotifier) statuses() []model.PaymentStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.PaymentStatus(nil), n.events...)
}
