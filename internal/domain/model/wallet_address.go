package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletAddress tracks per-user sender wallet usage. Rows are upserted on
// the first completed payment from an address and incremented on every
// later one; they are never deleted. This is usage bookkeeping, not KYC.
type WalletAddress struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          string          `gorm:"size:100;not null;uniqueIndex:idx_wallet_user_address" json:"user_id"`
	WalletAddress   string          `gorm:"size:64;not null;uniqueIndex:idx_wallet_user_address" json:"wallet_address"`
	IsVerified      bool            `gorm:"default:false" json:"is_verified"`
	Label           *string         `gorm:"size:100" json:"label,omitempty"`
	PaymentCount    int64           `gorm:"default:0" json:"payment_count"`
	TotalAmountUSDT decimal.Decimal `gorm:"type:decimal(36,18);default:0" json:"total_amount_usdt"`
	FirstUsedAt     time.Time       `gorm:"default:now()" json:"first_used_at"`
	LastUsedAt      time.Time       `gorm:"default:now()" json:"last_used_at"`
}

// TableName specifies the table name for GORM
func (WalletAddress) TableName() string {
	return "wallet_addresses"
}
