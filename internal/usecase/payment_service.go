package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lexinote/payment-service/internal/domain/dto"
	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/domain/model"
	"github.com/lexinote/payment-service/internal/domain/repository"
)

// PaymentServiceConfig holds the payment intent parameters
type PaymentServiceConfig struct {
	ReceivingAddress      string
	PaymentTTL            time.Duration
	RequiredConfirmations int64
}

// PaymentService handles the API-facing payment operations. Everything
// after creation is driven by the verification scheduler; this service
// only reads state back, except for the admin override.
type PaymentService struct {
	cfg        PaymentServiceConfig
	payments   repository.PaymentRepository
	queue      repository.PendingTransactionRepository
	wallets    repository.WalletAddressRepository
	dispatcher *ActivationDispatcher
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	cfg PaymentServiceConfig,
	payments repository.PaymentRepository,
	queue repository.PendingTransactionRepository,
	wallets repository.WalletAddressRepository,
	dispatcher *ActivationDispatcher,
	notifier Notifier,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		cfg:        cfg,
		payments:   payments,
		queue:      queue,
		wallets:    wallets,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreatePayment opens a new payment intent and enqueues it for the
// verification scheduler.
func (s *PaymentService) CreatePayment(ctx context.Context, userID string, req *dto.CreatePaymentRequest) (*dto.PaymentResponse, error) {
	amountUSDT, err := decimal.NewFromString(req.AmountUSDT)
	if err != nil || amountUSDT.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("invalid amount_usdt: %q", req.AmountUSDT)
	}
	amountVND, err := decimal.NewFromString(req.AmountVND)
	if err != nil || amountVND.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("invalid amount_vnd: %q", req.AmountVND)
	}
	usdtRate, err := decimal.NewFromString(req.USDTRate)
	if err != nil || usdtRate.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("invalid usdt_rate: %q", req.USDTRate)
	}

	now := s.now()
	paymentID := uuid.New()

	// a caller that already knows the sender wallet skips the scanning
	// phase; the scheduler locates the transfer by sender filter instead
	var fromAddress *string
	initialStatus := model.PaymentStatusScanning
	queueStatus := model.QueueStatusScanning
	if req.FromAddress != nil && *req.FromAddress != "" {
		normalized := strings.ToLower(*req.FromAddress)
		fromAddress = &normalized
		initialStatus = model.PaymentStatusPending
		queueStatus = model.QueueStatusPending
	}

	payment := &model.Payment{
		PaymentID:          paymentID,
		OrderInvoiceNumber: generateInvoiceNumber(now),
		UserID:             userID,
		PaymentType:        model.PaymentType(req.PaymentType),
		Plan:               req.Plan,
		DurationMonths:     req.DurationMonths,
		PointsAmount:       req.PointsAmount,
		AmountUSDT:         amountUSDT,
		AmountVND:          amountVND,
		USDTRate:           usdtRate,
		FromAddress:        fromAddress,
		ToAddress:          strings.ToLower(s.cfg.ReceivingAddress),
		RequiredConfirms:   s.cfg.RequiredConfirmations,
		Status:             initialStatus,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.cfg.PaymentTTL),
		UpdatedAt:          now,
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	entry := &model.PendingTransaction{
		PaymentID:        paymentID,
		UserID:           userID,
		FromAddress:      fromAddress,
		ToAddress:        payment.ToAddress,
		AmountUSDT:       amountUSDT,
		Status:           queueStatus,
		RequiredConfirms: s.cfg.RequiredConfirmations,
		FirstSeenAt:      now,
		LastCheckedAt:    now,
	}
	if err := s.queue.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue payment for verification: %w", err)
	}

	s.logger.Info("Payment created",
		zap.String("payment_id", paymentID.String()),
		zap.String("user_id", userID),
		zap.String("payment_type", req.PaymentType),
		zap.String("amount_usdt", amountUSDT.String()),
		zap.String("invoice", payment.OrderInvoiceNumber))

	return dto.NewPaymentResponse(payment), nil
}

// GetPayment returns one payment owned by the caller
func (s *PaymentService) GetPayment(ctx context.Context, userID string, paymentID uuid.UUID) (*dto.PaymentResponse, error) {
	payment, err := s.payments.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		// ownership check deliberately reports not-found, not forbidden
		return nil, domainErrors.ErrPaymentNotFound
	}
	return dto.NewPaymentResponse(payment), nil
}

// ListPayments returns a page of the caller's payments, newest first
func (s *PaymentService) ListPayments(ctx context.Context, userID string, status string, limit, offset int) (*dto.ListPaymentsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	payments, err := s.payments.List(ctx, repository.PaymentFilters{
		UserID: userID,
		Status: model.PaymentStatus(status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	responses := make([]*dto.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, dto.NewPaymentResponse(p))
	}
	return &dto.ListPaymentsResponse{Payments: responses, Limit: limit, Offset: offset}, nil
}

// GetUserWallets returns the sender wallets remembered for a user
func (s *PaymentService) GetUserWallets(ctx context.Context, userID string) ([]*dto.WalletResponse, error) {
	wallets, err := s.wallets.GetUserWallets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user wallets: %w", err)
	}

	responses := make([]*dto.WalletResponse, 0, len(wallets))
	for _, w := range wallets {
		responses = append(responses, dto.NewWalletResponse(w))
	}
	return responses, nil
}

// ManualConfirm is the admin override for payments the chain pipeline
// could not settle (support verified the transfer out of band). It
// forces the payment to confirmed from any status, runs activation, and
// completes it. Re-running on a completed payment is a no-op.
func (s *PaymentService) ManualConfirm(ctx context.Context, paymentID uuid.UUID, adminID, notes string) (*dto.PaymentResponse, error) {
	payment, err := s.payments.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == model.PaymentStatusCompleted {
		return dto.NewPaymentResponse(payment), nil
	}

	if err := s.payments.ManualConfirm(ctx, paymentID, adminID, notes); err != nil {
		return nil, fmt.Errorf("failed to record manual confirmation: %w", err)
	}

	// the payment left the chain pipeline; drop the queue entry now so the
	// scheduler never drives a manually confirmed payment again
	if err := s.queue.RemoveByPaymentID(ctx, paymentID); err != nil {
		s.logger.Warn("Failed to remove manually confirmed payment from queue",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
	}

	payment, err = s.payments.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment manually confirmed",
		zap.String("payment_id", paymentID.String()),
		zap.String("admin_id", adminID))

	if err := s.dispatcher.Activate(ctx, payment); err != nil {
		// payment stays confirmed; the admin can retry the endpoint
		return nil, err
	}

	if _, err := s.payments.UpdateStatus(ctx, paymentID, model.PaymentStatusCompleted, repository.StatusUpdate{}); err != nil {
		return nil, fmt.Errorf("failed to mark payment completed: %w", err)
	}

	if payment.FromAddress != nil && *payment.FromAddress != "" {
		if _, err := s.wallets.RegisterUsage(ctx, payment.UserID, *payment.FromAddress, payment.AmountUSDT); err != nil {
			s.logger.Warn("Failed to record wallet usage",
				zap.String("payment_id", paymentID.String()),
				zap.Error(err))
		}
	}

	final, err := s.payments.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyStatusChange(final)
	return dto.NewPaymentResponse(final), nil
}

// generateInvoiceNumber builds a human-readable invoice reference,
// e.g. INV-20260828-7F3A2C.
func generateInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix)
}
