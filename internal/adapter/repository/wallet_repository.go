package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexinote/payment-service/internal/domain/model"
	domainRepo "github.com/lexinote/payment-service/internal/domain/repository"
)

// walletAddressRepository implements the WalletAddressRepository interface
type walletAddressRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWalletAddressRepository creates a new wallet address repository instance
func NewWalletAddressRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WalletAddressRepository {
	return &walletAddressRepository{
		db:     db,
		logger: logger,
	}
}

// RegisterUsage records that a wallet sent a completed payment for a
// user, creating the row on first use and accumulating counters after.
// Addresses are stored lowercase so the (user_id, wallet_address) unique
// index is effectively case-insensitive.
func (r *walletAddressRepository) RegisterUsage(ctx context.Context, userID, address string, amountUSDT decimal.Decimal) (*model.WalletAddress, error) {
	normalized := strings.ToLower(address)
	var wallet *model.WalletAddress

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.WalletAddress
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND wallet_address = ?", userID, normalized).
			FirstOrCreate(&row, model.WalletAddress{
				UserID:          userID,
				WalletAddress:   normalized,
				TotalAmountUSDT: decimal.Zero,
				FirstUsedAt:     time.Now().UTC(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to lock wallet row: %w", err)
		}

		row.PaymentCount++
		row.TotalAmountUSDT = row.TotalAmountUSDT.Add(amountUSDT)
		row.LastUsedAt = time.Now().UTC()

		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to update wallet usage: %w", err)
		}

		wallet = &row
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to register wallet usage",
			zap.String("user_id", userID),
			zap.String("wallet_address", normalized),
			zap.Error(err))
		return nil, err
	}

	r.logger.Info("Wallet usage recorded",
		zap.String("user_id", userID),
		zap.String("wallet_address", normalized),
		zap.Int64("payment_count", wallet.PaymentCount),
		zap.String("total_amount_usdt", wallet.TotalAmountUSDT.String()))

	return wallet, nil
}

// GetUserWallets lists a user's remembered wallets, most recently used first
func (r *walletAddressRepository) GetUserWallets(ctx context.Context, userID string) ([]*model.WalletAddress, error) {
	var wallets []*model.WalletAddress

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_used_at DESC").
		Find(&wallets).Error
	if err != nil {
		r.logger.Error("Failed to list user wallets",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list user wallets: %w", err)
	}

	return wallets, nil
}
