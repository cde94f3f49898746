package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/domain/model"
	"github.com/lexinote/payment-service/internal/domain/repository"
)

// SubscriptionService is the external collaborator that activates or
// upgrades a subscription. It must be safe to call more than once with
// the same paymentID (idempotency key) without double-granting.
type SubscriptionService interface {
	CreateOrUpgrade(ctx context.Context, userID, plan string, durationMonths int, paymentID string) (string, error)
}

// PointsService is the external collaborator that credits points, with
// the same idempotency requirement keyed on the payment ID carried in
// metadata.
type PointsService interface {
	AddPoints(ctx context.Context, userID string, amount int64, reason string, metadata map[string]interface{}) (string, error)
}

// ActivationDispatcher applies exactly one business effect per confirmed
// payment. The linkage columns on the payment row are the idempotency
// guard: once set, repeat calls return success without touching the
// collaborator, which makes scheduler retries safe.
type ActivationDispatcher struct {
	payments      repository.PaymentRepository
	subscriptions SubscriptionService
	points        PointsService
	logger        *zap.Logger
}

// NewActivationDispatcher creates a new activation dispatcher
func NewActivationDispatcher(
	payments repository.PaymentRepository,
	subscriptions SubscriptionService,
	points PointsService,
	logger *zap.Logger,
) *ActivationDispatcher {
	return &ActivationDispatcher{
		payments:      payments,
		subscriptions: subscriptions,
		points:        points,
		logger:        logger,
	}
}

// Activate applies the payment's business effect and records the linkage.
// A failure from the external collaborator surfaces as ActivationError;
// the caller leaves the payment at confirmed and retries on the next
// tick.
func (d *ActivationDispatcher) Activate(ctx context.Context, payment *model.Payment) error {
	if payment.ActivationLinked() {
		d.logger.Info("Activation already applied, skipping (idempotency)",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.String("payment_type", string(payment.PaymentType)))
		return nil
	}

	switch payment.PaymentType {
	case model.PaymentTypeSubscription:
		return d.activateSubscription(ctx, payment)
	case model.PaymentTypePoints:
		return d.activatePoints(ctx, payment)
	default:
		return fmt.Errorf("unknown payment type %q for payment %s",
			payment.PaymentType, payment.PaymentID)
	}
}

func (d *ActivationDispatcher) activateSubscription(ctx context.Context, payment *model.Payment) error {
	if payment.Plan == nil || payment.DurationMonths == nil {
		return fmt.Errorf("subscription payment %s missing plan or duration", payment.PaymentID)
	}

	subscriptionID, err := d.subscriptions.CreateOrUpgrade(ctx,
		payment.UserID, *payment.Plan, *payment.DurationMonths, payment.PaymentID.String())
	if err != nil {
		d.logger.Error("Subscription activation failed",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.String("user_id", payment.UserID),
			zap.String("plan", *payment.Plan),
			zap.Error(err))
		return domainErrors.NewActivationError(payment.PaymentID.String(), err)
	}

	if err := d.payments.LinkSubscription(ctx, payment.PaymentID, subscriptionID); err != nil {
		var inconsistent *domainErrors.InconsistentLinkError
		if errors.As(err, &inconsistent) {
			// Definitive data inconsistency, not a retryable collaborator
			// failure — surface it loudly.
			d.logger.Error("Subscription linkage inconsistency",
				zap.String("payment_id", payment.PaymentID.String()),
				zap.Error(err))
			return err
		}
		return domainErrors.NewActivationError(payment.PaymentID.String(), err)
	}

	payment.SubscriptionID = &subscriptionID
	d.logger.Info("Subscription activated for payment",
		zap.String("payment_id", payment.PaymentID.String()),
		zap.String("user_id", payment.UserID),
		zap.String("subscription_id", subscriptionID))
	return nil
}

func (d *ActivationDispatcher) activatePoints(ctx context.Context, payment *model.Payment) error {
	if payment.PointsAmount == nil {
		return fmt.Errorf("points payment %s missing points amount", payment.PaymentID)
	}

	metadata := map[string]interface{}{
		"payment_id":     payment.PaymentID.String(),
		"invoice_number": payment.OrderInvoiceNumber,
		"amount_usdt":    payment.AmountUSDT.String(),
	}

	txnID, err := d.points.AddPoints(ctx,
		payment.UserID, *payment.PointsAmount, "USDT payment", metadata)
	if err != nil {
		d.logger.Error("Points credit failed",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.String("user_id", payment.UserID),
			zap.Int64("points", *payment.PointsAmount),
			zap.Error(err))
		return domainErrors.NewActivationError(payment.PaymentID.String(), err)
	}

	if err := d.payments.LinkPointsTransaction(ctx, payment.PaymentID, txnID); err != nil {
		var inconsistent *domainErrors.InconsistentLinkError
		if errors.As(err, &inconsistent) {
			d.logger.Error("Points linkage inconsistency",
				zap.String("payment_id", payment.PaymentID.String()),
				zap.Error(err))
			return err
		}
		return domainErrors.NewActivationError(payment.PaymentID.String(), err)
	}

	payment.PointsTxnID = &txnID
	d.logger.Info("Points credited for payment",
		zap.String("payment_id", payment.PaymentID.String()),
		zap.String("user_id", payment.UserID),
		zap.Int64("points", *payment.PointsAmount),
		zap.String("points_transaction_id", txnID))
	return nil
}
