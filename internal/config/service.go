package config

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// ActivationConfig points at the core backend's internal API used to
// apply business effects after a payment settles.
type ActivationConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// RedisConfig is optional: with no address configured the scheduler runs
// in single-instance mode without a leader lock.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WebhookConfig points status notifications at a backend endpoint. An
// empty endpoint disables notifications.
type WebhookConfig struct {
	Endpoint string `yaml:"endpoint"`
	Secret   string `yaml:"secret"`
}
