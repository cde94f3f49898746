package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/domain/model"
	"github.com/lexinote/payment-service/internal/domain/repository"
	"github.com/lexinote/payment-service/internal/infrastructure/chain"
	"github.com/lexinote/payment-service/internal/usecase"
)

type schedulerFixture struct {
	payments  *MockPaymentRepository
	queue     *MockPendingTransactionRepository
	wallets   *MockWalletAddressRepository
	reader    *MockChainReader
	subs      *MockSubscriptionService
	points    *MockPointsService
	notifier  *recordingNotifier
	scheduler *usecase.VerificationScheduler
}

func newSchedulerFixture(maxRetries int) *schedulerFixture {
	logger := zap.NewNop()
	f := &schedulerFixture{
		payments: new(MockPaymentRepository),
		queue:    new(MockPendingTransactionRepository),
		wallets:  new(MockWalletAddressRepository),
		reader:   new(MockChainReader),
		subs:     new(MockSubscriptionService),
		points:   new(MockPointsService),
		notifier: &recordingNotifier{},
	}
	dispatcher := usecase.NewActivationDispatcher(f.payments, f.subs, f.points, logger)
	verifier := usecase.NewTransferVerifier(testContract)
	f.scheduler = usecase.NewVerificationScheduler(
		usecase.SchedulerConfig{
			CheckInterval:         30 * time.Second,
			MaxRetries:            maxRetries,
			RequiredConfirmations: 12,
			PaymentTTL:            30 * time.Minute,
			AmountToleranceUSDT:   decimal.RequireFromString("0.01"),
			ScanToleranceFraction: decimal.RequireFromString("0.01"),
			MaxBlocksToScan:       1000,
			SweepBatchSize:        100,
		},
		f.payments, f.queue, f.wallets, f.reader, verifier, dispatcher, f.notifier, nil, logger,
	)
	return f
}

// noExpiry stubs an empty expiry sweep
func (f *schedulerFixture) noExpiry() {
	f.payments.On("ExpireStale", mock.Anything, mock.Anything).Return([]uuid.UUID{}, nil)
}

// emptyPhase stubs an empty queue listing for one phase
func (f *schedulerFixture) emptyPhase(status model.QueueStatus) {
	f.queue.On("ListByStatus", mock.Anything, status, 100).Return([]*model.PendingTransaction{}, nil)
}

func scanningEntry(paymentID uuid.UUID, retries int) *model.PendingTransaction {
	return &model.PendingTransaction{
		PaymentID:        paymentID,
		UserID:           "user-1",
		ToAddress:        testRecipient,
		AmountUSDT:       decimal.RequireFromString("50"),
		Status:           model.QueueStatusScanning,
		RequiredConfirms: 12,
		RetryCount:       retries,
		FirstSeenAt:      time.Now().Add(-time.Minute),
		LastCheckedAt:    time.Now().Add(-time.Minute),
	}
}

func confirmingEntry(paymentID uuid.UUID, txHash string) *model.PendingTransaction {
	from := testSender
	return &model.PendingTransaction{
		PaymentID:        paymentID,
		UserID:           "user-1",
		TransactionHash:  &txHash,
		FromAddress:      &from,
		ToAddress:        testRecipient,
		AmountUSDT:       decimal.RequireFromString("50"),
		Status:           model.QueueStatusPending,
		RequiredConfirms: 12,
		FirstSeenAt:      time.Now().Add(-time.Minute),
		LastCheckedAt:    time.Now().Add(-time.Minute),
	}
}

func storedPayment(paymentID uuid.UUID, status model.PaymentStatus) *model.Payment {
	plan := "premium"
	months := 12
	return &model.Payment{
		PaymentID:          paymentID,
		OrderInvoiceNumber: "INV-20260828-CCCCCC",
		UserID:             "user-1",
		PaymentType:        model.PaymentTypeSubscription,
		Plan:               &plan,
		DurationMonths:     &months,
		AmountUSDT:         decimal.RequireFromString("50"),
		ToAddress:          testRecipient,
		RequiredConfirms:   12,
		Status:             status,
		CreatedAt:          time.Now().Add(-time.Minute),
		ExpiresAt:          time.Now().Add(29 * time.Minute),
	}
}

func TestVerificationScheduler_ExpireSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("expired payments are dropped from the queue and notified", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()

		f.payments.On("ExpireStale", mock.Anything, mock.Anything).Return([]uuid.UUID{paymentID}, nil)
		f.queue.On("RemoveByPaymentIDs", mock.Anything, []uuid.UUID{paymentID}).Return(nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusExpired), nil)
		f.emptyPhase(model.QueueStatusScanning)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.queue.AssertExpectations(t)
		assert.Equal(t, []model.PaymentStatus{model.PaymentStatusExpired}, f.notifier.statuses())
	})
}

func TestVerificationScheduler_ScanningSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("discovered transfer advances the payment to verifying", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := scanningEntry(paymentID, 0)

		f.noExpiry()
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusScanning, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.MatchedBy(func(p chain.FindTransferParams) bool {
			return p.ToAddress == testRecipient && p.ExpectedAmount.Equal(entry.AmountUSDT)
		})).Return(&chain.TransferMatch{
			TxHash:      "0xfound",
			FromAddress: testSender,
			ToAddress:   testRecipient,
			Amount:      decimal.RequireFromString("50"),
			BlockNumber: 990,
		}, nil)
		f.reader.On("GetCurrentBlock", mock.Anything).Return(int64(994), nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusVerifying,
			mock.MatchedBy(func(u repository.StatusUpdate) bool {
				return u.TransactionHash != nil && *u.TransactionHash == "0xfound" &&
					u.BlockNumber != nil && *u.BlockNumber == 990
			})).Return(true, nil)
		f.queue.On("Update", mock.Anything, paymentID, mock.MatchedBy(func(u repository.QueueUpdate) bool {
			return u.Status != nil && *u.Status == model.QueueStatusPending &&
				u.TransactionHash != nil && *u.TransactionHash == "0xfound"
		})).Return(nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusVerifying), nil)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.payments.AssertExpectations(t)
		f.queue.AssertExpectations(t)
	})

	t.Run("a miss spends one retry", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := scanningEntry(paymentID, 3)

		f.noExpiry()
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusScanning, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.Anything).Return(nil, domainErrors.ErrNotFound)
		f.queue.On("Update", mock.Anything, paymentID, mock.MatchedBy(func(u repository.QueueUpdate) bool {
			return u.RetryCount != nil && *u.RetryCount == 4
		})).Return(nil)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.queue.AssertExpectations(t)
		f.payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("a transient chain error also spends one retry", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := scanningEntry(paymentID, 0)

		f.noExpiry()
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusScanning, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.Anything).Return(nil, domainErrors.ErrChainUnavailable)
		f.queue.On("Update", mock.Anything, paymentID, mock.MatchedBy(func(u repository.QueueUpdate) bool {
			return u.RetryCount != nil && *u.RetryCount == 1
		})).Return(nil)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.queue.AssertExpectations(t)
	})

	t.Run("exhausted retry budget fails the payment", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := scanningEntry(paymentID, 19)

		f.noExpiry()
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusScanning, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.Anything).Return(nil, domainErrors.ErrNotFound)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusFailed,
			mock.MatchedBy(func(u repository.StatusUpdate) bool {
				return u.ErrorMessage != nil && *u.ErrorMessage == "no matching transaction found"
			})).Return(true, nil)
		f.queue.On("RemoveByPaymentID", mock.Anything, paymentID).Return(nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusFailed), nil)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.payments.AssertExpectations(t)
		f.queue.AssertExpectations(t)
		assert.Equal(t, []model.PaymentStatus{model.PaymentStatusFailed}, f.notifier.statuses())
	})

	t.Run("exhausted budget never fails a confirmed payment", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := scanningEntry(paymentID, 19)

		f.noExpiry()
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusScanning, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.Anything).Return(nil, domainErrors.ErrNotFound)
		// funds already arrived via the admin override; the guard refuses
		// the transition and the scheduler must leave the payment alone
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusFailed, mock.Anything).
			Return(false, nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusConfirmed), nil)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.queue.AssertNotCalled(t, "RemoveByPaymentID", mock.Anything, mock.Anything)
		assert.Empty(t, f.notifier.statuses())
	})

	t.Run("refused failure on a terminal payment drops the stale entry", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := scanningEntry(paymentID, 19)

		f.noExpiry()
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusScanning, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.Anything).Return(nil, domainErrors.ErrNotFound)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusFailed, mock.Anything).
			Return(false, nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusExpired), nil)
		f.queue.On("RemoveByPaymentID", mock.Anything, paymentID).Return(nil)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.queue.AssertExpectations(t)
		assert.Empty(t, f.notifier.statuses())
	})

	t.Run("one failing entry does not abort the sweep", func(t *testing.T) {
		f := newSchedulerFixture(20)
		badID := uuid.New()
		goodID := uuid.New()
		bad := scanningEntry(badID, 0)
		good := scanningEntry(goodID, 0)

		f.noExpiry()
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusScanning, 100).
			Return([]*model.PendingTransaction{bad, good}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.Anything).
			Return(nil, errors.New("unexpected decode failure")).Once()
		f.reader.On("FindTransfer", mock.Anything, mock.Anything).Return(nil, domainErrors.ErrNotFound).Once()
		f.queue.On("Update", mock.Anything, goodID, mock.Anything).Return(nil)
		f.emptyPhase(model.QueueStatusPending)

		f.scheduler.Sweep(ctx)

		f.queue.AssertCalled(t, "Update", mock.Anything, goodID, mock.Anything)
	})
}

func TestVerificationScheduler_ConfirmingSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("chain unavailable skips the tick without spending retries", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xdead")

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xdead").
			Return(int64(0), domainErrors.ErrChainUnavailable)

		f.scheduler.Sweep(ctx)

		f.queue.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
		f.payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("entry without a hash is resolved by sender filter", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		from := testSender
		entry := confirmingEntry(paymentID, "")
		entry.TransactionHash = nil
		entry.FromAddress = &from

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("FindTransfer", mock.Anything, mock.MatchedBy(func(p chain.FindTransferParams) bool {
			return p.FromAddress == testSender && p.ToAddress == testRecipient
		})).Return(&chain.TransferMatch{
			TxHash:      "0xbysender",
			FromAddress: testSender,
			ToAddress:   testRecipient,
			Amount:      decimal.RequireFromString("50"),
			BlockNumber: 990,
		}, nil)
		f.reader.On("GetCurrentBlock", mock.Anything).Return(int64(992), nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusVerifying,
			mock.MatchedBy(func(u repository.StatusUpdate) bool {
				return u.TransactionHash != nil && *u.TransactionHash == "0xbysender"
			})).Return(true, nil)
		f.queue.On("Update", mock.Anything, paymentID, mock.MatchedBy(func(u repository.QueueUpdate) bool {
			return u.TransactionHash != nil && *u.TransactionHash == "0xbysender"
		})).Return(nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusVerifying), nil)

		f.scheduler.Sweep(ctx)

		f.payments.AssertExpectations(t)
		f.queue.AssertExpectations(t)
	})

	t.Run("reverted transaction fails the payment immediately", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xrevert")

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xrevert").Return(int64(3), nil)
		receipt := transferReceipt(t, testSender, testRecipient, "50")
		receipt.Status = 0
		f.reader.On("GetReceipt", mock.Anything, "0xrevert").Return(receipt, nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusFailed, mock.Anything).
			Return(true, nil)
		f.queue.On("RemoveByPaymentID", mock.Anything, paymentID).Return(nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusFailed), nil)

		f.scheduler.Sweep(ctx)

		f.payments.AssertExpectations(t)
		f.queue.AssertExpectations(t)
		f.subs.AssertNotCalled(t, "CreateOrUpgrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("below required confirmations keeps waiting", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xwait")

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xwait").Return(int64(5), nil)
		receipt := transferReceipt(t, testSender, testRecipient, "50")
		f.reader.On("GetReceipt", mock.Anything, "0xwait").Return(receipt, nil)
		f.queue.On("Update", mock.Anything, paymentID, mock.MatchedBy(func(u repository.QueueUpdate) bool {
			return u.ConfirmationCount != nil && *u.ConfirmationCount == 5
		})).Return(nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusVerifying,
			mock.MatchedBy(func(u repository.StatusUpdate) bool {
				return u.ConfirmationCount != nil && *u.ConfirmationCount == 5
			})).Return(true, nil)

		f.scheduler.Sweep(ctx)

		f.queue.AssertExpectations(t)
		f.subs.AssertNotCalled(t, "CreateOrUpgrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("verified transfer completes the payment end to end", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xgood")
		confirmed := storedPayment(paymentID, model.PaymentStatusConfirmed)
		completed := storedPayment(paymentID, model.PaymentStatusCompleted)

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xgood").Return(int64(15), nil)
		f.reader.On("GetReceipt", mock.Anything, "0xgood").
			Return(transferReceipt(t, testSender, testRecipient, "50"), nil)
		f.queue.On("Update", mock.Anything, paymentID, mock.Anything).Return(nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusConfirmed,
			mock.MatchedBy(func(u repository.StatusUpdate) bool {
				return u.FromAddress != nil && *u.FromAddress == testSender
			})).Return(true, nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).Return(confirmed, nil).Once()
		f.subs.On("CreateOrUpgrade", mock.Anything, "user-1", "premium", 12, paymentID.String()).
			Return("sub-777", nil)
		f.payments.On("LinkSubscription", mock.Anything, paymentID, "sub-777").Return(nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusCompleted, mock.Anything).
			Return(true, nil)
		f.wallets.On("RegisterUsage", mock.Anything, "user-1", testSender, confirmed.AmountUSDT).
			Return(&model.WalletAddress{UserID: "user-1", WalletAddress: testSender}, nil)
		f.queue.On("RemoveByPaymentID", mock.Anything, paymentID).Return(nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).Return(completed, nil).Once()

		f.scheduler.Sweep(ctx)

		f.payments.AssertExpectations(t)
		f.wallets.AssertExpectations(t)
		f.queue.AssertExpectations(t)
		assert.Equal(t, []model.PaymentStatus{model.PaymentStatusCompleted}, f.notifier.statuses())
	})

	t.Run("replayed completion never double-counts wallet usage", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xdone")

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xdone").Return(int64(15), nil)
		f.reader.On("GetReceipt", mock.Anything, "0xdone").
			Return(transferReceipt(t, testSender, testRecipient, "50"), nil)
		f.queue.On("Update", mock.Anything, paymentID, mock.Anything).Return(nil)
		// already completed by an earlier tick whose queue removal failed
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusConfirmed, mock.Anything).
			Return(false, nil)
		f.queue.On("RemoveByPaymentID", mock.Anything, paymentID).Return(nil)

		f.scheduler.Sweep(ctx)

		f.queue.AssertExpectations(t)
		f.wallets.AssertNotCalled(t, "RegisterUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.subs.AssertNotCalled(t, "CreateOrUpgrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, paymentID, model.PaymentStatusCompleted, mock.Anything)
	})

	t.Run("activation failure leaves the payment confirmed for retry", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xgood")
		confirmed := storedPayment(paymentID, model.PaymentStatusConfirmed)

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xgood").Return(int64(15), nil)
		f.reader.On("GetReceipt", mock.Anything, "0xgood").
			Return(transferReceipt(t, testSender, testRecipient, "50"), nil)
		f.queue.On("Update", mock.Anything, paymentID, mock.Anything).Return(nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusConfirmed, mock.Anything).
			Return(true, nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).Return(confirmed, nil)
		f.subs.On("CreateOrUpgrade", mock.Anything, "user-1", "premium", 12, paymentID.String()).
			Return("", errors.New("backend down"))

		f.scheduler.Sweep(ctx)

		f.payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, paymentID, model.PaymentStatusCompleted, mock.Anything)
		f.queue.AssertNotCalled(t, "RemoveByPaymentID", mock.Anything, paymentID)
		assert.Equal(t, []model.PaymentStatus{model.PaymentStatusConfirmed}, f.notifier.statuses())
	})

	t.Run("amount mismatch fails the payment without activation", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xshort")

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xshort").Return(int64(15), nil)
		f.reader.On("GetReceipt", mock.Anything, "0xshort").
			Return(transferReceipt(t, testSender, testRecipient, "40"), nil)
		f.queue.On("Update", mock.Anything, paymentID, mock.Anything).Return(nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusFailed,
			mock.MatchedBy(func(u repository.StatusUpdate) bool {
				return u.ErrorMessage != nil && *u.ErrorMessage == usecase.ReasonAmountMismatch
			})).Return(true, nil)
		f.queue.On("RemoveByPaymentID", mock.Anything, paymentID).Return(nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).
			Return(storedPayment(paymentID, model.PaymentStatusFailed), nil)

		f.scheduler.Sweep(ctx)

		f.payments.AssertExpectations(t)
		f.subs.AssertNotCalled(t, "CreateOrUpgrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unmined transaction past expiry is cancelled", func(t *testing.T) {
		f := newSchedulerFixture(20)
		paymentID := uuid.New()
		entry := confirmingEntry(paymentID, "0xunmined")
		expired := storedPayment(paymentID, model.PaymentStatusVerifying)
		expired.ExpiresAt = time.Now().Add(-time.Minute)

		f.noExpiry()
		f.emptyPhase(model.QueueStatusScanning)
		f.queue.On("ListByStatus", mock.Anything, model.QueueStatusPending, 100).
			Return([]*model.PendingTransaction{entry}, nil)
		f.reader.On("GetConfirmations", mock.Anything, "0xunmined").Return(int64(0), nil)
		f.payments.On("GetByPaymentID", mock.Anything, paymentID).Return(expired, nil)
		f.payments.On("UpdateStatus", mock.Anything, paymentID, model.PaymentStatusCancelled, mock.Anything).
			Return(true, nil)
		f.queue.On("RemoveByPaymentID", mock.Anything, paymentID).Return(nil)

		f.scheduler.Sweep(ctx)

		f.payments.AssertExpectations(t)
		f.queue.AssertExpectations(t)
	})
}
