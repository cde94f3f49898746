package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentType distinguishes what a payment buys
type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypePoints       PaymentType = "points"
)

// Scan implements sql.Scanner interface
func (t *PaymentType) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*t = PaymentType(v)
	case []byte:
		*t = PaymentType(v)
	default:
		return nil
	}
	return nil
}

// Value implements driver.Valuer interface
func (t PaymentType) Value() (driver.Value, error) {
	return string(t), nil
}

// PaymentStatus represents the lifecycle state of a payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusScanning   PaymentStatus = "scanning"
	PaymentStatusVerifying  PaymentStatus = "verifying"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusConfirmed  PaymentStatus = "confirmed"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusExpired    PaymentStatus = "expired"
)

// statusRank orders statuses for forward-only progression checks.
// Terminal statuses share the top rank so one terminal state can never
// replace another.
var statusRank = map[PaymentStatus]int{
	PaymentStatusPending:    0,
	PaymentStatusScanning:   1,
	PaymentStatusVerifying:  2,
	PaymentStatusProcessing: 3,
	PaymentStatusConfirmed:  4,
	PaymentStatusCompleted:  5,
	PaymentStatusFailed:     5,
	PaymentStatusCancelled:  5,
	PaymentStatusExpired:    5,
}

// IsTerminal reports whether the status ends the payment lifecycle
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving to next is a forward transition.
// A confirmed payment has funds definitively on-chain: the only statuses
// reachable from it are confirmed (re-entry while activation retries) and
// completed — never a failure status.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == PaymentStatusConfirmed {
		return next == PaymentStatusConfirmed || next == PaymentStatusCompleted
	}
	return statusRank[next] >= statusRank[s]
}

// TerminalStatuses lists every terminal status, for repository guards
func TerminalStatuses() []PaymentStatus {
	return []PaymentStatus{
		PaymentStatusCompleted,
		PaymentStatusFailed,
		PaymentStatusCancelled,
		PaymentStatusExpired,
	}
}

// EligiblePredecessors lists every status from which a forward transition
// to next is allowed, for use in single-statement guarded updates.
func EligiblePredecessors(next PaymentStatus) []PaymentStatus {
	all := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusScanning,
		PaymentStatusVerifying,
		PaymentStatusProcessing,
		PaymentStatusConfirmed,
	}
	eligible := make([]PaymentStatus, 0, len(all))
	for _, s := range all {
		if s.CanTransitionTo(next) {
			eligible = append(eligible, s)
		}
	}
	return eligible
}

// Scan implements sql.Scanner interface
func (s *PaymentStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = PaymentStatus(v)
	case []byte:
		*s = PaymentStatus(v)
	default:
		return nil
	}
	return nil
}

// Value implements driver.Valuer interface
func (s PaymentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Payment represents a user-initiated intent to pay a fixed USDT amount
// for a fixed effect (subscription activation or points credit).
// Created by the API layer; mutated exclusively by the verification
// scheduler and the activation dispatcher afterwards. Never deleted —
// terminal rows are retained for audit.
type Payment struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID          uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;uniqueIndex" json:"payment_id"`
	OrderInvoiceNumber string          `gorm:"size:40;not null;uniqueIndex" json:"order_invoice_number"`
	UserID             string          `gorm:"size:100;not null;index:idx_payments_user_status" json:"user_id"`
	PaymentType        PaymentType     `gorm:"type:payment_type;not null" json:"payment_type"`
	Plan               *string         `gorm:"size:50" json:"plan,omitempty"`
	DurationMonths     *int            `json:"duration_months,omitempty"`
	PointsAmount       *int64          `json:"points_amount,omitempty"`
	AmountUSDT         decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount_usdt"`
	AmountVND          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount_vnd"`
	USDTRate           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"usdt_rate"`
	FromAddress        *string         `gorm:"size:64" json:"from_address,omitempty"`
	ToAddress          string          `gorm:"size:64;not null" json:"to_address"`
	TransactionHash    *string         `gorm:"size:128;index" json:"transaction_hash,omitempty"`
	BlockNumber        *int64          `json:"block_number,omitempty"`
	ConfirmationCount  int64           `gorm:"default:0" json:"confirmation_count"`
	RequiredConfirms   int64           `gorm:"column:required_confirmations;not null" json:"required_confirmations"`
	Status             PaymentStatus   `gorm:"type:payment_status;not null;default:'pending';index:idx_payments_user_status" json:"status"`
	SubscriptionID     *string         `gorm:"size:100" json:"subscription_id,omitempty"`
	PointsTxnID        *string         `gorm:"column:points_transaction_id;size:100" json:"points_transaction_id,omitempty"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	ManualConfirmedBy  *string         `gorm:"size:100" json:"manual_confirmed_by,omitempty"`
	AdminNotes         *string         `json:"admin_notes,omitempty"`
	CreatedAt          time.Time       `gorm:"default:now()" json:"created_at"`
	ExpiresAt          time.Time       `gorm:"not null;index" json:"expires_at"`
	PaymentReceivedAt  *time.Time      `json:"payment_received_at,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	UpdatedAt          time.Time       `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// IsExpired reports whether the payment intent passed its TTL at the given time
func (p *Payment) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ActivationLinked reports whether the business effect has been recorded
func (p *Payment) ActivationLinked() bool {
	switch p.PaymentType {
	case PaymentTypeSubscription:
		return p.SubscriptionID != nil && *p.SubscriptionID != ""
	case PaymentTypePoints:
		return p.PointsTxnID != nil && *p.PointsTxnID != ""
	}
	return false
}
