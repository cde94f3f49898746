package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/domain/model"
	domainRepo "github.com/lexinote/payment-service/internal/domain/repository"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB, logger *zap.Logger) domainRepo.PaymentRepository {
	return &paymentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new payment row
func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		r.logger.Error("Failed to create payment",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByPaymentID retrieves a payment by its public UUID
func (r *paymentRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		r.logger.Error("Failed to get payment",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

// GetByInvoiceNumber retrieves a payment by its invoice reference
func (r *paymentRepository) GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).
		Where("order_invoice_number = ?", invoiceNumber).
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by invoice: %w", err)
	}

	return &payment, nil
}

// GetByTransactionHash retrieves a payment by its on-chain transaction hash
func (r *paymentRepository) GetByTransactionHash(ctx context.Context, txHash string) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).
		Where("transaction_hash = ?", txHash).
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by transaction hash: %w", err)
	}

	return &payment, nil
}

// List retrieves payments matching the filters, newest first
func (r *paymentRepository) List(ctx context.Context, filters domainRepo.PaymentFilters) ([]*model.Payment, error) {
	var payments []*model.Payment

	query := r.db.WithContext(ctx).Order("created_at DESC")

	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.PaymentType != "" {
		query = query.Where("payment_type = ?", filters.PaymentType)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&payments).Error; err != nil {
		r.logger.Error("Failed to list payments",
			zap.String("user_id", filters.UserID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}

// statusTimestampColumn maps a status to the timestamp column stamped
// when the payment first reaches it.
func statusTimestampColumn(status model.PaymentStatus) string {
	switch status {
	case model.PaymentStatusVerifying:
		return "payment_received_at"
	case model.PaymentStatusConfirmed:
		return "confirmed_at"
	case model.PaymentStatusCompleted:
		return "completed_at"
	case model.PaymentStatusCancelled, model.PaymentStatusExpired:
		return "cancelled_at"
	}
	return ""
}

// UpdateStatus transitions a payment forward in a single guarded UPDATE.
// The WHERE clause only matches rows whose current status may legally
// move to the target, so concurrent sweeps and terminal rows resolve to
// zero affected rows rather than an error or a backward transition.
func (r *paymentRepository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status model.PaymentStatus, update domainRepo.StatusUpdate) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if update.TransactionHash != nil {
		updates["transaction_hash"] = *update.TransactionHash
	}
	if update.BlockNumber != nil {
		updates["block_number"] = *update.BlockNumber
	}
	if update.ConfirmationCount != nil {
		updates["confirmation_count"] = *update.ConfirmationCount
	}
	if update.FromAddress != nil {
		updates["from_address"] = *update.FromAddress
	}
	if update.ErrorMessage != nil {
		updates["error_message"] = *update.ErrorMessage
	}
	if col := statusTimestampColumn(status); col != "" {
		// stamp only on first arrival at this status
		updates[col] = gorm.Expr("COALESCE(" + col + ", NOW())")
	}

	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("payment_id = ? AND status IN ?", paymentID, model.EligiblePredecessors(status)).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to update payment status",
			zap.String("payment_id", paymentID.String()),
			zap.String("status", string(status)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to update payment status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&model.Payment{}).
			Where("payment_id = ?", paymentID).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("failed to check payment existence: %w", err)
		}
		if count == 0 {
			return false, domainErrors.ErrPaymentNotFound
		}
		// row exists but the transition was terminal or backward
		r.logger.Debug("Status update skipped",
			zap.String("payment_id", paymentID.String()),
			zap.String("requested_status", string(status)))
		return false, nil
	}

	return true, nil
}

// LinkSubscription records the subscription created for this payment.
// The linkage is write-once: repeating the same value is a no-op and a
// conflicting value is rejected.
func (r *paymentRepository) LinkSubscription(ctx context.Context, paymentID uuid.UUID, subscriptionID string) error {
	return r.linkOnce(ctx, paymentID, "subscription_id", subscriptionID, func(p *model.Payment) *string {
		return p.SubscriptionID
	})
}

// LinkPointsTransaction records the points ledger entry created for this
// payment, with the same write-once semantics as LinkSubscription.
func (r *paymentRepository) LinkPointsTransaction(ctx context.Context, paymentID uuid.UUID, pointsTxnID string) error {
	return r.linkOnce(ctx, paymentID, "points_transaction_id", pointsTxnID, func(p *model.Payment) *string {
		return p.PointsTxnID
	})
}

func (r *paymentRepository) linkOnce(ctx context.Context, paymentID uuid.UUID, column, value string, current func(*model.Payment) *string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment model.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_id = ?", paymentID).
			First(&payment).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErrors.ErrPaymentNotFound
			}
			return fmt.Errorf("failed to lock payment row: %w", err)
		}

		existing := current(&payment)
		if existing != nil && *existing != "" {
			if *existing == value {
				return nil
			}
			return domainErrors.NewInconsistentLinkError(payment.PaymentID.String(), *existing, value)
		}

		return tx.Model(&model.Payment{}).
			Where("payment_id = ?", paymentID).
			Updates(map[string]interface{}{
				column:       value,
				"updated_at": time.Now().UTC(),
			}).Error
	})

	if err != nil {
		var linkErr *domainErrors.InconsistentLinkError
		if errors.As(err, &linkErr) || errors.Is(err, domainErrors.ErrPaymentNotFound) {
			return err
		}
		r.logger.Error("Failed to record activation linkage",
			zap.String("payment_id", paymentID.String()),
			zap.String("column", column),
			zap.Error(err))
		return fmt.Errorf("failed to record activation linkage: %w", err)
	}

	return nil
}

// ExpireStale batch-expires payments still awaiting transaction discovery
// whose TTL has elapsed, and returns their IDs.
func (r *paymentRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var expired []uuid.UUID

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&model.Payment{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND expires_at < ?",
				[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusScanning},
				cutoff).
			Pluck("payment_id", &ids).Error
		if err != nil {
			return fmt.Errorf("failed to select stale payments: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		message := "payment expired before a matching transaction was found"
		err = tx.Model(&model.Payment{}).
			Where("payment_id IN ?", ids).
			Updates(map[string]interface{}{
				"status":        model.PaymentStatusExpired,
				"error_message": message,
				"cancelled_at":  gorm.Expr("COALESCE(cancelled_at, NOW())"),
				"updated_at":    time.Now().UTC(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to expire stale payments: %w", err)
		}

		expired = ids
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to expire stale payments", zap.Error(err))
		return nil, err
	}

	return expired, nil
}

// ManualConfirm is the admin override. Unlike UpdateStatus it bypasses
// the forward-only guard so a failed or expired payment can still be
// settled by support.
func (r *paymentRepository) ManualConfirm(ctx context.Context, paymentID uuid.UUID, adminID, notes string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"status":              model.PaymentStatusConfirmed,
			"manual_confirmed_by": adminID,
			"admin_notes":         notes,
			"error_message":       nil,
			"confirmed_at":        gorm.Expr("COALESCE(confirmed_at, NOW())"),
			"updated_at":          time.Now().UTC(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to manually confirm payment",
			zap.String("payment_id", paymentID.String()),
			zap.String("admin_id", adminID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to manually confirm payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrPaymentNotFound
	}

	return nil
}
