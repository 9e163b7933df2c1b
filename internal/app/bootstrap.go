package app

import (
	"fmt"
	"log/slog"

	"exchange_go/internal/engine"
	"exchange_go/internal/infra"
	"exchange_go/internal/infra/storage"
	"exchange_go/internal/notify"
	"exchange_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Hub        *notify.Hub
	Orders     *service.OrderService
	Matching   *service.MatchingService
	Dispatcher *engine.Dispatcher
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize wires config, logging, storage, seeding and the trading
// services together.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Database.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("database initialized", slog.String("path", cfg.Database.Path))

	// 4. Seed demo accounts (idempotent)
	if err := b.seedAccounts(); err != nil {
		return err
	}

	// 5. Notification hub and trading services
	b.Hub = notify.NewHub()
	b.Matching = service.NewMatchingService(store, b.Hub)
	b.Dispatcher = engine.NewDispatcher(store, b.Matching,
		cfg.Matching.QueueSize, cfg.Matching.Workers, cfg.Matching.MaxAttempts)
	b.Orders = service.NewOrderService(store, cfg.Exchange.Symbols, b.Dispatcher)

	slog.Info("trading core ready",
		slog.Any("symbols", cfg.Exchange.Symbols),
		slog.Int("match_workers", cfg.Matching.Workers))
	return nil
}

func (b *Bootstrap) seedAccounts() error {
	for _, seed := range b.Config.Seed.Accounts {
		balance, err := seed.ParsedBalance()
		if err != nil {
			return fmt.Errorf("seed %q: %w", seed.Email, err)
		}
		holdings, err := seed.ParsedHoldings()
		if err != nil {
			return fmt.Errorf("seed %q: %w", seed.Email, err)
		}
		if _, err := b.Storage.EnsureAccount(seed.Name, seed.Email, balance, holdings); err != nil {
			return fmt.Errorf("seed %q: %w", seed.Email, err)
		}
	}
	if len(b.Config.Seed.Accounts) > 0 {
		slog.Info("seed accounts ensured", slog.Int("count", len(b.Config.Seed.Accounts)))
	}
	return nil
}
