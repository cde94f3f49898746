package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QueueStatus is the scheduler-side state of a pending transaction.
// Scanning means the transaction hash is still unknown and recent blocks
// are being searched; pending means the hash is known and the entry is
// waiting for confirmations.
type QueueStatus string

const (
	QueueStatusScanning QueueStatus = "scanning"
	QueueStatusPending  QueueStatus = "pending"
)

// Scan implements sql.Scanner interface
func (s *QueueStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = QueueStatus(v)
	case []byte:
		*s = QueueStatus(v)
	default:
		return nil
	}
	return nil
}

// Value implements driver.Valuer interface
func (s QueueStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// PendingTransaction is a queue membership record: one row per payment
// currently under verification. It is created when a payment enters active
// verification and deleted the moment the payment reaches a terminal
// status. It is not history — the payment row is.
type PendingTransaction struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID         uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;uniqueIndex" json:"payment_id"`
	UserID            string          `gorm:"size:100;not null" json:"user_id"`
	TransactionHash   *string         `gorm:"size:128" json:"transaction_hash,omitempty"`
	FromAddress       *string         `gorm:"size:64" json:"from_address,omitempty"`
	ToAddress         string          `gorm:"size:64;not null" json:"to_address"`
	AmountUSDT        decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount_usdt"`
	Status            QueueStatus     `gorm:"type:queue_status;not null;index" json:"status"`
	ConfirmationCount int64           `gorm:"default:0" json:"confirmation_count"`
	RequiredConfirms  int64           `gorm:"column:required_confirmations;not null" json:"required_confirmations"`
	RetryCount        int             `gorm:"default:0" json:"retry_count"`
	FirstSeenAt       time.Time       `gorm:"default:now()" json:"first_seen_at"`
	LastCheckedAt     time.Time       `gorm:"default:now()" json:"last_checked_at"`
}

// TableName specifies the table name for GORM
func (PendingTransaction) TableName() string {
	return "pending_transactions"
}
