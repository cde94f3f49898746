package config

import "time"

// ChainConfig holds the BSC connection and contract settings
type ChainConfig struct {
	RPCEndpoints     []string      `yaml:"rpc_endpoints"`
	TokenContract    string        `yaml:"token_contract"`
	ReceivingAddress string        `yaml:"receiving_address"`
	RPCTimeout       time.Duration `yaml:"rpc_timeout"`
}

func (c *ChainConfig) applyDefaults() {
	if c.TokenContract == "" {
		// USDT BEP-20 on BSC mainnet
		c.TokenContract = "0x55d398326f99059fF775485246999027B3197955"
	}
	if c.RPCTimeout == 0 {
		c.RPCTimeout = 10 * time.Second
	}
}

// VerificationConfig holds the scheduler tuning knobs
type VerificationConfig struct {
	CheckInterval         time.Duration `yaml:"check_interval"`
	MaxRetries            int           `yaml:"max_retries"`
	RequiredConfirmations int64         `yaml:"required_confirmations"`
	PaymentTTL            time.Duration `yaml:"payment_ttl"`
	AmountToleranceUSDT   string        `yaml:"amount_tolerance_usdt"`
	ScanTolerancePercent  float64       `yaml:"scan_tolerance_percent"`
	MaxBlocksToScan       int64         `yaml:"max_blocks_to_scan"`
	SweepBatchSize        int           `yaml:"sweep_batch_size"`
	LockTTL               time.Duration `yaml:"lock_ttl"`
}

func (c *VerificationConfig) applyDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 20
	}
	if c.RequiredConfirmations == 0 {
		c.RequiredConfirmations = 12
	}
	if c.PaymentTTL == 0 {
		c.PaymentTTL = 30 * time.Minute
	}
	if c.AmountToleranceUSDT == "" {
		c.AmountToleranceUSDT = "0.01"
	}
	if c.ScanTolerancePercent == 0 {
		c.ScanTolerancePercent = 1.0
	}
	if c.MaxBlocksToScan == 0 {
		c.MaxBlocksToScan = 1000
	}
	if c.SweepBatchSize == 0 {
		c.SweepBatchSize = 100
	}
	if c.LockTTL == 0 {
		c.LockTTL = 2 * time.Minute
	}
}
