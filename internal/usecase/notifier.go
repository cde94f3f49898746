package usecase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lexinote/payment-service/internal/domain/model"
)

// PaymentEvent is the webhook payload sent to the frontend backend
type PaymentEvent struct {
	Event              string    `json:"event"`
	PaymentID          string    `json:"payment_id"`
	OrderInvoiceNumber string    `json:"order_invoice_number"`
	UserID             string    `json:"user_id"`
	Status             string    `json:"status"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Notifier announces payment status changes. Best-effort: failures are
// logged and never propagate into the payment pipeline.
type Notifier interface {
	NotifyStatusChange(payment *model.Payment)
}

// WebhookNotifier delivers payment.status_changed events over HTTP with
// a bounded number of backoff retries, fired on a separate goroutine.
type WebhookNotifier struct {
	endpoint   string
	secret     string
	client     *http.Client
	maxRetries int
	logger     *zap.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a webhook notifier. An empty endpoint
// disables delivery.
func NewWebhookNotifier(endpoint, secret string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint:   endpoint,
		secret:     secret,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		logger:     logger,
	}
}

// NotifyStatusChange fires the event without blocking the caller
func (n *WebhookNotifier) NotifyStatusChange(payment *model.Payment) {
	if n.endpoint == "" {
		return
	}

	event := PaymentEvent{
		Event:              "payment.status_changed",
		PaymentID:          payment.PaymentID.String(),
		OrderInvoiceNumber: payment.OrderInvoiceNumber,
		UserID:             payment.UserID,
		Status:             string(payment.Status),
		OccurredAt:         time.Now().UTC(),
	}
	if payment.ErrorMessage != nil {
		event.ErrorMessage = *payment.ErrorMessage
	}

	go n.deliver(event)
}

func (n *WebhookNotifier) deliver(event PaymentEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to encode webhook payload",
			zap.String("payment_id", event.PaymentID),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 2 * time.Second
			select {
			case <-ctx.Done():
				n.logger.Warn("Webhook delivery abandoned",
					zap.String("payment_id", event.PaymentID),
					zap.String("status", event.Status))
				return
			case <-time.After(backoff):
			}
		}

		if err := n.post(ctx, body); err != nil {
			n.logger.Warn("Webhook delivery attempt failed",
				zap.String("payment_id", event.PaymentID),
				zap.String("status", event.Status),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		n.logger.Debug("Webhook delivered",
			zap.String("payment_id", event.PaymentID),
			zap.String("status", event.Status))
		return
	}

	n.logger.Error("Webhook delivery failed after retries",
		zap.String("payment_id", event.PaymentID),
		zap.String("status", event.Status),
		zap.Int("attempts", n.maxRetries+1))
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-Webhook-Signature", n.sign(body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(n.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
