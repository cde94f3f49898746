package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lexinote/payment-service/internal/domain/model"
)

// CreatePaymentRequest is the payload for opening a new payment intent
type CreatePaymentRequest struct {
	PaymentType    string  `json:"payment_type" validate:"required,oneof=subscription points"`
	Plan           *string `json:"plan,omitempty" validate:"required_if=PaymentType subscription,omitempty,oneof=basic standard premium"`
	DurationMonths *int    `json:"duration_months,omitempty" validate:"required_if=PaymentType subscription,omitempty,min=1,max=36"`
	PointsAmount   *int64  `json:"points_amount,omitempty" validate:"required_if=PaymentType points,omitempty,min=1"`
	AmountUSDT     string  `json:"amount_usdt" validate:"required"`
	AmountVND      string  `json:"amount_vnd" validate:"required"`
	USDTRate       string  `json:"usdt_rate" validate:"required"`
	FromAddress    *string `json:"from_address,omitempty" validate:"omitempty,eth_addr"`
}

// ManualConfirmRequest is the admin override payload
type ManualConfirmRequest struct {
	Notes string `json:"notes" validate:"required,min=3,max=2000"`
}

// PaymentResponse is the public view of a payment
type PaymentResponse struct {
	PaymentID          string          `json:"payment_id"`
	OrderInvoiceNumber string          `json:"order_invoice_number"`
	UserID             string          `json:"user_id"`
	PaymentType        string          `json:"payment_type"`
	Plan               *string         `json:"plan,omitempty"`
	DurationMonths     *int            `json:"duration_months,omitempty"`
	PointsAmount       *int64          `json:"points_amount,omitempty"`
	AmountUSDT         decimal.Decimal `json:"amount_usdt"`
	AmountVND          decimal.Decimal `json:"amount_vnd"`
	USDTRate           decimal.Decimal `json:"usdt_rate"`
	ToAddress          string          `json:"to_address"`
	FromAddress        *string         `json:"from_address,omitempty"`
	TransactionHash    *string         `json:"transaction_hash,omitempty"`
	ConfirmationCount  int64           `json:"confirmation_count"`
	RequiredConfirms   int64           `json:"required_confirmations"`
	Status             string          `json:"status"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	ExpiresAt          time.Time       `json:"expires_at"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// NewPaymentResponse maps a payment row to its public view
func NewPaymentResponse(p *model.Payment) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:          p.PaymentID.String(),
		OrderInvoiceNumber: p.OrderInvoiceNumber,
		UserID:             p.UserID,
		PaymentType:        string(p.PaymentType),
		Plan:               p.Plan,
		DurationMonths:     p.DurationMonths,
		PointsAmount:       p.PointsAmount,
		AmountUSDT:         p.AmountUSDT,
		AmountVND:          p.AmountVND,
		USDTRate:           p.USDTRate,
		ToAddress:          p.ToAddress,
		FromAddress:        p.FromAddress,
		TransactionHash:    p.TransactionHash,
		ConfirmationCount:  p.ConfirmationCount,
		RequiredConfirms:   p.RequiredConfirms,
		Status:             string(p.Status),
		ErrorMessage:       p.ErrorMessage,
		CreatedAt:          p.CreatedAt,
		ExpiresAt:          p.ExpiresAt,
		ConfirmedAt:        p.ConfirmedAt,
		CompletedAt:        p.CompletedAt,
	}
}

// ListPaymentsResponse wraps a page of payments
type ListPaymentsResponse struct {
	Payments []*PaymentResponse `json:"payments"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// WalletResponse is the public view of a remembered sender wallet
type WalletResponse struct {
	WalletAddress   string          `json:"wallet_address"`
	IsVerified      bool            `json:"is_verified"`
	Label           *string         `json:"label,omitempty"`
	PaymentCount    int64           `json:"payment_count"`
	TotalAmountUSDT decimal.Decimal `json:"total_amount_usdt"`
	FirstUsedAt     time.Time       `json:"first_used_at"`
	LastUsedAt      time.Time       `json:"last_used_at"`
}

// NewWalletResponse maps a wallet row to its public view
func NewWalletResponse(w *model.WalletAddress) *WalletResponse {
	return &WalletResponse{
		WalletAddress:   w.WalletAddress,
		IsVerified:      w.IsVerified,
		Label:           w.Label,
		PaymentCount:    w.PaymentCount,
		TotalAmountUSDT: w.TotalAmountUSDT,
		FirstUsedAt:     w.FirstUsedAt,
		LastUsedAt:      w.LastUsedAt,
	}
}
