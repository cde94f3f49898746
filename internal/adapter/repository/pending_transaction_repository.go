package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/domain/model"
	domainRepo "github.com/lexinote/payment-service/internal/domain/repository"
)

// pendingTransactionRepository implements the PendingTransactionRepository interface
type pendingTransactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPendingTransactionRepository creates a new queue repository instance
func NewPendingTransactionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.PendingTransactionRepository {
	return &pendingTransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Add enqueues a payment for verification
func (r *pendingTransactionRepository) Add(ctx context.Context, entry *model.PendingTransaction) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Error("Failed to enqueue pending transaction",
			zap.String("payment_id", entry.PaymentID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to enqueue pending transaction: %w", err)
	}
	return nil
}

// GetByPaymentID retrieves the queue entry for a payment
func (r *pendingTransactionRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.PendingTransaction, error) {
	var entry model.PendingTransaction

	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		First(&entry).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return &entry, nil
}

// ListByStatus retrieves queue entries in a phase, oldest check first so
// no entry starves under a batch limit.
func (r *pendingTransactionRepository) ListByStatus(ctx context.Context, status model.QueueStatus, limit int) ([]*model.PendingTransaction, error) {
	var entries []*model.PendingTransaction

	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("last_checked_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&entries).Error; err != nil {
		r.logger.Error("Failed to list queue entries",
			zap.String("status", string(status)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}

	return entries, nil
}

// Update applies the non-nil fields of the update to a queue entry
func (r *pendingTransactionRepository) Update(ctx context.Context, paymentID uuid.UUID, update domainRepo.QueueUpdate) error {
	updates := map[string]interface{}{}
	if update.Status != nil {
		updates["status"] = *update.Status
	}
	if update.TransactionHash != nil {
		updates["transaction_hash"] = *update.TransactionHash
	}
	if update.FromAddress != nil {
		updates["from_address"] = *update.FromAddress
	}
	if update.ConfirmationCount != nil {
		updates["confirmation_count"] = *update.ConfirmationCount
	}
	if update.RetryCount != nil {
		updates["retry_count"] = *update.RetryCount
	}
	if update.LastCheckedAt != nil {
		updates["last_checked_at"] = *update.LastCheckedAt
	} else {
		updates["last_checked_at"] = time.Now().UTC()
	}

	result := r.db.WithContext(ctx).
		Model(&model.PendingTransaction{}).
		Where("payment_id = ?", paymentID).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to update queue entry",
			zap.String("payment_id", paymentID.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update queue entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrNotFound
	}

	return nil
}

// RemoveByPaymentID deletes the queue entry for a payment. Removing an
// entry that is already gone is not an error.
func (r *pendingTransactionRepository) RemoveByPaymentID(ctx context.Context, paymentID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Delete(&model.PendingTransaction{}).Error
	if err != nil {
		r.logger.Error("Failed to remove queue entry",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return nil
}

// RemoveByPaymentIDs deletes queue entries in batch
func (r *pendingTransactionRepository) RemoveByPaymentIDs(ctx context.Context, paymentIDs []uuid.UUID) error {
	if len(paymentIDs) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Where("payment_id IN ?", paymentIDs).
		Delete(&model.PendingTransaction{}).Error
	if err != nil {
		r.logger.Error("Failed to remove queue entries",
			zap.Int("count", len(paymentIDs)),
			zap.Error(err))
		return fmt.Errorf("failed to remove queue entries: %w", err)
	}
	return nil
}
