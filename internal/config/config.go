package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Database     DatabaseConfig     `yaml:"database"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	JWT          JWTConfig          `yaml:"jwt"`
	Chain        ChainConfig        `yaml:"chain"`
	Verification VerificationConfig `yaml:"verification"`
	Activation   ActivationConfig   `yaml:"activation"`
	Redis        RedisConfig        `yaml:"redis"`
	Webhook      WebhookConfig      `yaml:"webhook"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JWTConfig holds the token verification settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/payment.yaml"
	}

	// Ensure absolute path
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Chain.applyDefaults()
	cfg.Verification.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.ReceivingAddress == "" {
		return fmt.Errorf("chain.receiving_address is required")
	}
	if len(c.Chain.RPCEndpoints) == 0 {
		return fmt.Errorf("chain.rpc_endpoints must list at least one endpoint")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Activation.BaseURL == "" {
		return fmt.Errorf("activation.base_url is required")
	}
	return nil
}
