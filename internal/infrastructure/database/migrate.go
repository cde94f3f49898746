package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lexinote/payment-service/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	// Create extensions first
	if err := createExtensions(db); err != nil {
		logger.Error("Failed to create extensions", zap.Error(err))
		return err
	}

	// Create custom types BEFORE auto-migrate
	if err := createCustomTypes(db); err != nil {
		logger.Error("Failed to create custom types", zap.Error(err))
		return err
	}

	// Auto-migrate all models
	err := db.AutoMigrate(
		&model.Payment{},
		&model.PendingTransaction{},
		&model.WalletAddress{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	// Create partial indexes GORM doesn't handle automatically
	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func createExtensions(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error
}

// createCustomTypes creates the enum types backing the status columns
func createCustomTypes(db *gorm.DB) error {
	var exists bool

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'payment_type')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE payment_type AS ENUM ('subscription', 'points')`).Error; err != nil {
			return err
		}
	}

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'payment_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE payment_status AS ENUM ('pending', 'scanning', 'verifying', 'processing', 'confirmed', 'completed', 'failed', 'cancelled', 'expired')`).Error; err != nil {
			return err
		}
	}

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'queue_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE queue_status AS ENUM ('scanning', 'pending')`).Error; err != nil {
			return err
		}
	}

	return nil
}

// createCustomIndexes creates partial indexes tuned for the scheduler's
// sweep queries.
func createCustomIndexes(db *gorm.DB) error {
	// Expiry sweep scans only payments still awaiting discovery
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_payments_expiry_sweep ON payments (expires_at) WHERE status IN ('pending', 'scanning')`).Error; err != nil {
		return err
	}

	// One hash settles at most one payment
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_tx_hash_unique ON payments (transaction_hash) WHERE transaction_hash IS NOT NULL AND status NOT IN ('failed', 'cancelled', 'expired')`).Error; err != nil {
		return err
	}

	// Sweep ordering: oldest check first within a phase
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_pending_tx_sweep ON pending_transactions (status, last_checked_at)`).Error; err != nil {
		return err
	}

	return nil
}
