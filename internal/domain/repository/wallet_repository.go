package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/lexinote/payment-service/internal/domain/model"
)

// WalletAddressRepository maintains per-user sender wallet statistics
type WalletAddressRepository interface {
	// RegisterUsage upserts the (user, address) row atomically: created
	// on first successful payment, counters incremented on every later
	// one. Addresses are normalized to lowercase by the repository.
	RegisterUsage(ctx context.Context, userID, address string, amountUSDT decimal.Decimal) (*model.WalletAddress, error)

	GetUserWallets(ctx context.Context, userID string) ([]*model.WalletAddress, error)
}
