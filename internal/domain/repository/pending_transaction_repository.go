package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lexinote/payment-service/internal/domain/model"
)

// QueueUpdate carries the mutable fields of a queue entry. Nil fields are
// left untouched. LastCheckedAt is always stamped by the repository.
type QueueUpdate struct {
	Status            *model.QueueStatus
	TransactionHash   *string
	FromAddress       *string
	ConfirmationCount *int64
	RetryCount        *int
	LastCheckedAt     *time.Time
}

// PendingTransactionRepository manages the scheduler's work queue. Entries
// exist only while a payment is under active verification.
type PendingTransactionRepository interface {
	Add(ctx context.Context, entry *model.PendingTransaction) error
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.PendingTransaction, error)
	ListByStatus(ctx context.Context, status model.QueueStatus, limit int) ([]*model.PendingTransaction, error)
	Update(ctx context.Context, paymentID uuid.UUID, update QueueUpdate) error
	RemoveByPaymentID(ctx context.Context, paymentID uuid.UUID) error
	RemoveByPaymentIDs(ctx context.Context, paymentIDs []uuid.UUID) error
}
