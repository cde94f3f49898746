package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/domain/model"
	"github.com/lexinote/payment-service/internal/domain/repository"
	"github.com/lexinote/payment-service/internal/infrastructure/chain"
)

// LeaderLock guards against two scheduler replicas sweeping the same
// store. A nil lock means single-instance mode.
type LeaderLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// SchedulerConfig holds the verification loop knobs
type SchedulerConfig struct {
	CheckInterval         time.Duration
	MaxRetries            int
	RequiredConfirmations int64
	PaymentTTL            time.Duration
	AmountToleranceUSDT   decimal.Decimal
	ScanToleranceFraction decimal.Decimal
	MaxBlocksToScan       int64
	SweepBatchSize        int
}

// VerificationScheduler is the long-lived background loop that drives
// every payment from creation to a terminal status. Exactly one sweep
// executes at a time: the tick handler runs the sweep inline, so an
// overrunning sweep delays the next tick instead of overlapping it.
type VerificationScheduler struct {
	cfg        SchedulerConfig
	payments   repository.PaymentRepository
	queue      repository.PendingTransactionRepository
	wallets    repository.WalletAddressRepository
	reader     chain.Reader
	verifier   *TransferVerifier
	dispatcher *ActivationDispatcher
	notifier   Notifier
	lock       LeaderLock
	logger     *zap.Logger
	now        func() time.Time
}

// NewVerificationScheduler creates the scheduler. It is constructed once
// at process start and owned by main — no package-level instance exists.
func NewVerificationScheduler(
	cfg SchedulerConfig,
	payments repository.PaymentRepository,
	queue repository.PendingTransactionRepository,
	wallets repository.WalletAddressRepository,
	reader chain.Reader,
	verifier *TransferVerifier,
	dispatcher *ActivationDispatcher,
	notifier Notifier,
	lock LeaderLock,
	logger *zap.Logger,
) *VerificationScheduler {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &VerificationScheduler{
		cfg:        cfg,
		payments:   payments,
		queue:      queue,
		wallets:    wallets,
		reader:     reader,
		verifier:   verifier,
		dispatcher: dispatcher,
		notifier:   notifier,
		lock:       lock,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled. The in-flight sweep always finishes
// before Run returns, so every observable change is persisted by the
// time shutdown completes.
func (s *VerificationScheduler) Run(ctx context.Context) {
	s.logger.Info("Verification scheduler started",
		zap.Duration("check_interval", s.cfg.CheckInterval),
		zap.Int64("required_confirmations", s.cfg.RequiredConfirmations),
		zap.Int("max_retries", s.cfg.MaxRetries))

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Verification scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *VerificationScheduler) tick(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.TryLock(ctx)
		if err != nil {
			s.logger.Error("Leader lock check failed, skipping tick", zap.Error(err))
			return
		}
		if !acquired {
			s.logger.Debug("Leader lock held elsewhere, skipping tick")
			return
		}
		defer func() {
			if err := s.lock.Unlock(ctx); err != nil {
				s.logger.Warn("Failed to release leader lock", zap.Error(err))
			}
		}()
	}

	s.Sweep(ctx)
}

// Sweep runs one full pass: expiry first so stale work is never
// processed, then transaction discovery, then confirmation tracking.
func (s *VerificationScheduler) Sweep(ctx context.Context) {
	started := s.now()

	s.expireSweep(ctx)
	s.scanningSweep(ctx)
	s.confirmingSweep(ctx)

	s.logger.Debug("Sweep finished", zap.Duration("elapsed", s.now().Sub(started)))
}

// expireSweep batch-expires payments past their TTL and drops their
// queue entries.
func (s *VerificationScheduler) expireSweep(ctx context.Context) {
	expired, err := s.payments.ExpireStale(ctx, s.now())
	if err != nil {
		s.logger.Error("Expire sweep failed", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	if err := s.queue.RemoveByPaymentIDs(ctx, expired); err != nil {
		s.logger.Error("Failed to drop queue entries for expired payments", zap.Error(err))
	}

	s.logger.Info("Expired stale payments", zap.Int("count", len(expired)))

	for _, id := range expired {
		if payment, err := s.payments.GetByPaymentID(ctx, id); err == nil {
			s.notifier.NotifyStatusChange(payment)
		}
	}
}

// scanningSweep searches recent blocks for transfers matching payments
// whose transaction hash is still unknown.
func (s *VerificationScheduler) scanningSweep(ctx context.Context) {
	entries, err := s.queue.ListByStatus(ctx, model.QueueStatusScanning, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Error("Failed to list scanning queue", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if err := s.processScanning(ctx, entry); err != nil {
			// one payment's failure never aborts the sweep for the rest
			s.logger.Error("Scanning pass failed for payment",
				zap.String("payment_id", entry.PaymentID.String()),
				zap.Error(err))
		}
	}
}

func (s *VerificationScheduler) processScanning(ctx context.Context, entry *model.PendingTransaction) error {
	params := chain.FindTransferParams{
		ToAddress:         entry.ToAddress,
		ExpectedAmount:    entry.AmountUSDT,
		ToleranceFraction: s.cfg.ScanToleranceFraction,
		MaxBlocksToScan:   s.cfg.MaxBlocksToScan,
	}
	if entry.FromAddress != nil {
		params.FromAddress = *entry.FromAddress
	}

	match, err := s.reader.FindTransfer(ctx, params)
	if err != nil {
		// "not found" and a transient chain error both mean "not resolved
		// yet"; each costs one unit of the same retry budget
		if errors.Is(err, domainErrors.ErrNotFound) || errors.Is(err, domainErrors.ErrChainUnavailable) {
			return s.countScanMiss(ctx, entry, err)
		}
		return err
	}

	confirmations, err := s.currentConfirmations(ctx, match.BlockNumber)
	if err != nil {
		confirmations = 0
	}

	s.logger.Info("Transaction discovered for payment",
		zap.String("payment_id", entry.PaymentID.String()),
		zap.String("tx_hash", match.TxHash),
		zap.String("from", match.FromAddress),
		zap.String("amount", match.Amount.String()),
		zap.Int64("confirmations", confirmations))

	if _, err := s.payments.UpdateStatus(ctx, entry.PaymentID, model.PaymentStatusVerifying, repository.StatusUpdate{
		TransactionHash:   &match.TxHash,
		BlockNumber:       &match.BlockNumber,
		ConfirmationCount: &confirmations,
		FromAddress:       &match.FromAddress,
	}); err != nil {
		return fmt.Errorf("failed to record discovered transaction: %w", err)
	}

	pending := model.QueueStatusPending
	now := s.now()
	if err := s.queue.Update(ctx, entry.PaymentID, repository.QueueUpdate{
		Status:            &pending,
		TransactionHash:   &match.TxHash,
		FromAddress:       &match.FromAddress,
		ConfirmationCount: &confirmations,
		LastCheckedAt:     &now,
	}); err != nil {
		return fmt.Errorf("failed to advance queue entry: %w", err)
	}

	if payment, err := s.payments.GetByPaymentID(ctx, entry.PaymentID); err == nil {
		s.notifier.NotifyStatusChange(payment)
	}
	return nil
}

func (s *VerificationScheduler) countScanMiss(ctx context.Context, entry *model.PendingTransaction, cause error) error {
	retries := entry.RetryCount + 1
	if retries >= s.cfg.MaxRetries {
		s.logger.Warn("Scan retry budget exhausted, failing payment",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.Int("retries", retries))
		return s.failPayment(ctx, entry.PaymentID, model.PaymentStatusFailed, "no matching transaction found")
	}

	if errors.Is(cause, domainErrors.ErrChainUnavailable) {
		s.logger.Warn("Chain unavailable during scan",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.Int("retry_count", retries),
			zap.Error(cause))
	}

	now := s.now()
	return s.queue.Update(ctx, entry.PaymentID, repository.QueueUpdate{
		RetryCount:    &retries,
		LastCheckedAt: &now,
	})
}

// confirmingSweep tracks confirmations for payments with a known hash
// and completes them once verified.
func (s *VerificationScheduler) confirmingSweep(ctx context.Context) {
	entries, err := s.queue.ListByStatus(ctx, model.QueueStatusPending, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Error("Failed to list pending queue", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if err := s.processConfirming(ctx, entry); err != nil {
			s.logger.Error("Confirmation pass failed for payment",
				zap.String("payment_id", entry.PaymentID.String()),
				zap.Error(err))
		}
	}
}

func (s *VerificationScheduler) processConfirming(ctx context.Context, entry *model.PendingTransaction) error {
	if entry.TransactionHash == nil {
		// a pre-supplied from_address skips the scanning phase; locate the
		// transfer here with the sender filter instead
		return s.processScanning(ctx, entry)
	}
	txHash := *entry.TransactionHash

	confirmations, err := s.reader.GetConfirmations(ctx, txHash)
	if err != nil {
		// infrastructure failure is not the payment's fault: skip this
		// tick without spending the retry budget
		s.logger.Warn("Chain unavailable while checking confirmations, will retry next tick",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return nil
	}

	if confirmations == 0 {
		return s.handleUnmined(ctx, entry)
	}

	receipt, err := s.reader.GetReceipt(ctx, txHash)
	if err != nil {
		s.logger.Warn("Failed to fetch receipt, will retry next tick",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return nil
	}

	if !receipt.Succeeded() {
		// a reverted transaction will never succeed — terminal immediately
		s.logger.Warn("Transaction reverted on-chain, failing payment",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.String("tx_hash", txHash))
		return s.failPayment(ctx, entry.PaymentID, model.PaymentStatusFailed,
			domainErrors.NewTransactionRevertedError(txHash).Error())
	}

	now := s.now()
	if err := s.queue.Update(ctx, entry.PaymentID, repository.QueueUpdate{
		ConfirmationCount: &confirmations,
		LastCheckedAt:     &now,
	}); err != nil {
		return fmt.Errorf("failed to record confirmation count: %w", err)
	}

	if confirmations < entry.RequiredConfirms {
		// record progress for API observability, then wait
		if _, err := s.payments.UpdateStatus(ctx, entry.PaymentID, model.PaymentStatusVerifying, repository.StatusUpdate{
			ConfirmationCount: &confirmations,
		}); err != nil {
			return err
		}
		s.logger.Debug("Awaiting confirmations",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.Int64("confirmations", confirmations),
			zap.Int64("required", entry.RequiredConfirms))
		return nil
	}

	return s.verifyAndComplete(ctx, entry, receipt, confirmations)
}

func (s *VerificationScheduler) handleUnmined(ctx context.Context, entry *model.PendingTransaction) error {
	payment, err := s.payments.GetByPaymentID(ctx, entry.PaymentID)
	if err != nil {
		return err
	}
	if payment.IsExpired(s.now()) {
		s.logger.Info("Unmined transaction past payment TTL, cancelling",
			zap.String("payment_id", entry.PaymentID.String()))
		return s.failPayment(ctx, entry.PaymentID, model.PaymentStatusCancelled,
			"transaction not mined before payment expiry")
	}

	retries := entry.RetryCount + 1
	if retries >= s.cfg.MaxRetries {
		return s.failPayment(ctx, entry.PaymentID, model.PaymentStatusFailed,
			"transaction not mined within retry budget")
	}

	now := s.now()
	return s.queue.Update(ctx, entry.PaymentID, repository.QueueUpdate{
		RetryCount:    &retries,
		LastCheckedAt: &now,
	})
}

func (s *VerificationScheduler) verifyAndComplete(ctx context.Context, entry *model.PendingTransaction, receipt *chain.Receipt, confirmations int64) error {
	verdict := s.verifier.Verify(receipt, entry.ToAddress, entry.AmountUSDT, s.cfg.AmountToleranceUSDT)
	if !verdict.Valid {
		// definitive mismatch, not a transient condition — no retry
		s.logger.Warn("Transfer verification failed, failing payment",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.String("tx_hash", receipt.TxHash),
			zap.String("reason", verdict.Reason))
		return s.failPayment(ctx, entry.PaymentID, model.PaymentStatusFailed, verdict.Reason)
	}

	updated, err := s.payments.UpdateStatus(ctx, entry.PaymentID, model.PaymentStatusConfirmed, repository.StatusUpdate{
		ConfirmationCount: &confirmations,
		FromAddress:       &verdict.Sender,
	})
	if err != nil {
		return fmt.Errorf("failed to mark payment confirmed: %w", err)
	}
	if !updated {
		// the payment reached a terminal status on an earlier tick whose
		// queue removal failed; drop the stale entry without replaying
		// activation or wallet bookkeeping
		s.logger.Info("Payment already terminal, dropping stale queue entry",
			zap.String("payment_id", entry.PaymentID.String()))
		return s.queue.RemoveByPaymentID(ctx, entry.PaymentID)
	}

	payment, err := s.payments.GetByPaymentID(ctx, entry.PaymentID)
	if err != nil {
		return err
	}

	if err := s.dispatcher.Activate(ctx, payment); err != nil {
		// funds have definitively arrived — never fail the payment here.
		// It stays at confirmed with its queue entry intact, and the next
		// tick retries activation.
		s.logger.Error("Activation failed, payment left at confirmed for retry",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.Error(err))
		s.notifier.NotifyStatusChange(payment)
		return nil
	}

	if _, err := s.payments.UpdateStatus(ctx, entry.PaymentID, model.PaymentStatusCompleted, repository.StatusUpdate{}); err != nil {
		return fmt.Errorf("failed to mark payment completed: %w", err)
	}

	if verdict.Sender != "" {
		if _, err := s.wallets.RegisterUsage(ctx, payment.UserID, verdict.Sender, payment.AmountUSDT); err != nil {
			s.logger.Warn("Failed to record wallet usage",
				zap.String("payment_id", entry.PaymentID.String()),
				zap.String("wallet", verdict.Sender),
				zap.Error(err))
		}
	}

	if err := s.queue.RemoveByPaymentID(ctx, entry.PaymentID); err != nil {
		s.logger.Warn("Failed to remove completed payment from queue",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.Error(err))
	}

	s.logger.Info("Payment completed",
		zap.String("payment_id", entry.PaymentID.String()),
		zap.String("tx_hash", receipt.TxHash),
		zap.String("amount_usdt", verdict.Amount.String()),
		zap.Int64("confirmations", confirmations))

	if final, err := s.payments.GetByPaymentID(ctx, entry.PaymentID); err == nil {
		s.notifier.NotifyStatusChange(final)
	}
	return nil
}

// failPayment transitions a payment to a terminal failure status, drops
// its queue entry, and fires the status webhook.
func (s *VerificationScheduler) failPayment(ctx context.Context, paymentID uuid.UUID, status model.PaymentStatus, message string) error {
	updated, err := s.payments.UpdateStatus(ctx, paymentID, status, repository.StatusUpdate{
		ErrorMessage: &message,
	})
	if err != nil {
		return fmt.Errorf("failed to mark payment %s: %w", status, err)
	}
	if !updated {
		// the guard refused the transition: the payment is confirmed or
		// already terminal. Confirmed payments keep their queue entry so
		// activation keeps retrying; terminal ones just lose the stale
		// entry.
		payment, err := s.payments.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentStatusConfirmed {
			s.logger.Info("Skipping failure for confirmed payment, funds already arrived",
				zap.String("payment_id", paymentID.String()),
				zap.String("attempted_status", string(status)))
			return nil
		}
		return s.queue.RemoveByPaymentID(ctx, paymentID)
	}

	if err := s.queue.RemoveByPaymentID(ctx, paymentID); err != nil {
		return fmt.Errorf("failed to remove payment from queue: %w", err)
	}

	if payment, err := s.payments.GetByPaymentID(ctx, paymentID); err == nil {
		s.notifier.NotifyStatusChange(payment)
	}
	return nil
}

func (s *VerificationScheduler) currentConfirmations(ctx context.Context, blockNumber int64) (int64, error) {
	current, err := s.reader.GetCurrentBlock(ctx)
	if err != nil {
		return 0, err
	}
	confirmations := current - blockNumber + 1
	if confirmations < 0 {
		confirmations = 0
	}
	return confirmations, nil
}
