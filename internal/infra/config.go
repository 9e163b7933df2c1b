package infra

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SeedAccount declares one demo account created at first startup.
// Amounts are decimal strings; yaml cannot decode into decimal.Decimal
// directly.
type SeedAccount struct {
	Name     string            `yaml:"name"`
	Email    string            `yaml:"email"`
	Balance  string            `yaml:"balance"`
	Holdings map[string]string `yaml:"holdings"`
}

// ParsedBalance returns the seed balance as a decimal.
func (a *SeedAccount) ParsedBalance() (decimal.Decimal, error) {
	return decimal.NewFromString(a.Balance)
}

// ParsedHoldings returns the seed holdings as decimals keyed by symbol.
func (a *SeedAccount) ParsedHoldings() (map[string]decimal.Decimal, error) {
	parsed := make(map[string]decimal.Decimal, len(a.Holdings))
	for symbol, amount := range a.Holdings {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("holding %s: %w", symbol, err)
		}
		parsed[symbol] = d
	}
	return parsed, nil
}

// Config holds every application setting. LoadConfig reads the yaml file
// and then applies environment overrides.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange struct {
		Symbols []string `yaml:"symbols"`
	} `yaml:"exchange"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Matching struct {
		QueueSize   int `yaml:"queue_size"`
		Workers     int `yaml:"workers"`
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"matching"`

	Notify struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"notify"`

	Seed struct {
		Accounts []SeedAccount `yaml:"accounts"`
	} `yaml:"seed"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Exchange.Symbols) == 0 {
		return fmt.Errorf("at least one trading symbol is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Matching.QueueSize <= 0 {
		return fmt.Errorf("matching queue size must be positive")
	}
	if c.Matching.Workers <= 0 {
		return fmt.Errorf("matching worker count must be positive")
	}
	if c.Matching.MaxAttempts <= 0 {
		return fmt.Errorf("matching max attempts must be positive")
	}
	for _, acc := range c.Seed.Accounts {
		if acc.Email == "" {
			return fmt.Errorf("seed account %q is missing an email", acc.Name)
		}
		balance, err := acc.ParsedBalance()
		if err != nil {
			return fmt.Errorf("seed account %q balance: %w", acc.Name, err)
		}
		if balance.IsNegative() {
			return fmt.Errorf("seed account %q has a negative balance", acc.Name)
		}
		if _, err := acc.ParsedHoldings(); err != nil {
			return fmt.Errorf("seed account %q: %w", acc.Name, err)
		}
	}
	return nil
}

// SupportsSymbol reports whether the symbol is in the configured set.
func (c *Config) SupportsSymbol(symbol string) bool {
	for _, s := range c.Exchange.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// overrideWithEnv applies environment overrides when present.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("EXCHANGE_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if addr := os.Getenv("EXCHANGE_NOTIFY_ADDR"); addr != "" {
		cfg.Notify.ListenAddr = addr
	}
}
