package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lexinote/payment-service/internal/domain/model"
)

// StatusUpdate carries the optional fields that may be written together
// with a status transition. Nil fields are left untouched.
type StatusUpdate struct {
	TransactionHash   *string
	BlockNumber       *int64
	ConfirmationCount *int64
	FromAddress       *string
	ErrorMessage      *string
}

// PaymentFilters narrows List queries
type PaymentFilters struct {
	UserID      string
	Status      model.PaymentStatus
	PaymentType model.PaymentType
	Limit       int
	Offset      int
}

// PaymentRepository is the sole writer of payment rows. Status updates
// are single-statement and guarded so a payment already in a terminal
// status is silently left alone — duplicate scheduler ticks racing each
// other must not error.
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error)
	GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*model.Payment, error)
	GetByTransactionHash(ctx context.Context, txHash string) (*model.Payment, error)
	List(ctx context.Context, filters PaymentFilters) ([]*model.Payment, error)

	// UpdateStatus transitions a payment forward, stamping the
	// status-specific timestamp and writing any extra fields. Returns
	// (false, nil) when the row was already terminal or the transition
	// would move backward.
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, status model.PaymentStatus, update StatusUpdate) (bool, error)

	// LinkSubscription and LinkPointsTransaction each set their linkage
	// exactly once. A repeat call with the same value is a no-op; a
	// different value fails with InconsistentLinkError.
	LinkSubscription(ctx context.Context, paymentID uuid.UUID, subscriptionID string) error
	LinkPointsTransaction(ctx context.Context, paymentID uuid.UUID, pointsTxnID string) error

	// ExpireStale batch-transitions every pending/scanning payment whose
	// TTL elapsed before the cutoff and returns the affected payment IDs.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// ManualConfirm is the admin override: it forces the payment to
	// confirmed regardless of its current status, records who confirmed
	// it, and stamps confirmed_at only if it was never set.
	ManualConfirm(ctx context.Context, paymentID uuid.UUID, adminID, notes string) error
}
