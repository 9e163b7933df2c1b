package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"exchange_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage wraps the database and exposes the transactional, row-lockable
// primitives the trading core needs.
type Storage struct {
	db *gorm.DB

	// rowLocks is true when the dialect honors SELECT ... FOR UPDATE.
	// SQLite serializes write transactions at the connection level
	// instead, so the clause is skipped there.
	rowLocks bool
}

// NewStorage opens (or creates) the SQLite database at path and migrates
// the schema.
func NewStorage(path string) (*Storage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// _txlock=immediate makes write transactions take the write lock at
	// BEGIN, so two concurrent placements serialize instead of both
	// reading the same pre-mutation balance.
	dsn := path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return Open(db)
}

// Open wraps an existing connection and migrates the schema. Tests use
// this with a throwaway database file.
func Open(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(
		&domain.Account{},
		&domain.AssetHolding{},
		&domain.Order{},
		&domain.Trade{},
		&domain.MatchJob{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{
		db:       db,
		rowLocks: db.Dialector.Name() != "sqlite",
	}, nil
}

// DB exposes the underlying connection for read-only queries.
func (s *Storage) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside one all-or-nothing transaction. Any error
// rolls back every change made in the attempt.
func (s *Storage) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// ForUpdate applies an exclusive row lock to the query on dialects that
// support it.
func (s *Storage) ForUpdate(tx *gorm.DB) *gorm.DB {
	if s.rowLocks {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// ======================================================================================
// Account Operations
// ======================================================================================

// EnsureAccount creates an account with its initial holdings unless one
// already exists for the email. Idempotent; used by startup seeding.
func (s *Storage) EnsureAccount(name, email string, balance decimal.Decimal, holdings map[string]decimal.Decimal) (*domain.Account, error) {
	var account domain.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&account, "email = ?", email).Error
		if err == nil {
			return nil // already seeded
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		account = domain.Account{
			ID:      uuid.NewString(),
			Name:    name,
			Email:   email,
			Balance: balance,
		}
		if err := tx.Create(&account).Error; err != nil {
			return err
		}

		for symbol, amount := range holdings {
			holding := domain.AssetHolding{
				ID:        uuid.NewString(),
				AccountID: account.ID,
				Symbol:    symbol,
				Available: amount,
				Locked:    decimal.Zero,
			}
			if err := tx.Create(&holding).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount retrieves an account by id. Not found is not an error.
func (s *Storage) GetAccount(id string) (*domain.Account, error) {
	var account domain.Account
	err := s.db.First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &account, err
}

// LockAccount fetches an account inside tx under an exclusive row lock.
func (s *Storage) LockAccount(tx *gorm.DB, id string) (*domain.Account, error) {
	var account domain.Account
	if err := s.ForUpdate(tx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// ======================================================================================
// Holding Operations
// ======================================================================================

// LockHolding fetches the (account, symbol) holding inside tx under an
// exclusive row lock. Not found is not an error.
func (s *Storage) LockHolding(tx *gorm.DB, accountID, symbol string) (*domain.AssetHolding, error) {
	var holding domain.AssetHolding
	err := s.ForUpdate(tx).First(&holding, "account_id = ? AND symbol = ?", accountID, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &holding, nil
}

// LockOrCreateHolding is LockHolding with lazy creation at zero balances.
func (s *Storage) LockOrCreateHolding(tx *gorm.DB, accountID, symbol string) (*domain.AssetHolding, error) {
	holding, err := s.LockHolding(tx, accountID, symbol)
	if err != nil {
		return nil, err
	}
	if holding != nil {
		return holding, nil
	}

	holding = &domain.AssetHolding{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Symbol:    symbol,
		Available: decimal.Zero,
		Locked:    decimal.Zero,
	}
	if err := tx.Create(holding).Error; err != nil {
		return nil, err
	}
	return holding, nil
}

// AccountHoldings returns all holdings of an account, sorted by symbol.
func (s *Storage) AccountHoldings(tx *gorm.DB, accountID string) ([]domain.AssetHolding, error) {
	var holdings []domain.AssetHolding
	err := tx.Where("account_id = ?", accountID).Order("symbol asc").Find(&holdings).Error
	return holdings, err
}

// ======================================================================================
// Order Operations
// ======================================================================================

// GetOrder retrieves an order by id. Not found is not an error.
func (s *Storage) GetOrder(id string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &order, err
}

// LockOrder fetches an order inside tx under an exclusive row lock.
// Not found is not an error.
func (s *Storage) LockOrder(tx *gorm.DB, id string) (*domain.Order, error) {
	var order domain.Order
	err := s.ForUpdate(tx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OpenOrders returns the open orders of one side of a symbol's book,
// sorted by matching priority: buys best (highest) price first, sells
// best (lowest) price first, ties broken by earliest placement.
func (s *Storage) OpenOrders(symbol, side string) ([]domain.Order, error) {
	priceOrder := "price asc"
	if side == domain.SideBuy {
		priceOrder = "price desc"
	}

	var orders []domain.Order
	err := s.db.
		Where("symbol = ? AND side = ? AND status = ?", symbol, side, domain.OrderStatusOpen).
		Order(priceOrder).
		Order("created_at asc").
		Find(&orders).Error
	return orders, err
}

// FindMatchCandidate selects the best-priority open counter-order for the
// aggressive order and locks it. A buy seeks the cheapest compatible sell;
// a sell seeks the highest-paying compatible buy. Equal prices are broken
// by earliest placement. Returns nil when the book has no compatible
// counter-order.
func (s *Storage) FindMatchCandidate(tx *gorm.DB, aggressive *domain.Order) (*domain.Order, error) {
	query := s.ForUpdate(tx).
		Where("symbol = ? AND status = ?", aggressive.Symbol, domain.OrderStatusOpen)

	if aggressive.IsBuy() {
		query = query.
			Where("side = ? AND price <= ?", domain.SideSell, aggressive.Price).
			Order("price asc")
	} else {
		query = query.
			Where("side = ? AND price >= ?", domain.SideBuy, aggressive.Price).
			Order("price desc")
	}

	var candidate domain.Order
	err := query.Order("created_at asc").First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

// ======================================================================================
// Match Job Operations
// ======================================================================================

// CreateMatchJob persists a pending matching attempt for the order.
func (s *Storage) CreateMatchJob(orderID string) (*domain.MatchJob, error) {
	job := &domain.MatchJob{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Status:  domain.MatchJobPending,
	}
	if err := s.db.Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateMatchJob saves the job's current status and attempt count.
func (s *Storage) UpdateMatchJob(job *domain.MatchJob) error {
	return s.db.Save(job).Error
}

// PendingMatchJobs returns pending jobs, oldest first. Retrying jobs are
// excluded: they already have a backoff timer in flight.
func (s *Storage) PendingMatchJobs() ([]domain.MatchJob, error) {
	var jobs []domain.MatchJob
	err := s.db.
		Where("status = ?", domain.MatchJobPending).
		Order("created_at asc").
		Find(&jobs).Error
	return jobs, err
}

// RecoverableMatchJobs returns every unfinished job, oldest first. Used at
// startup, where an interrupted backoff timer no longer exists and a
// retrying row must be picked up again.
func (s *Storage) RecoverableMatchJobs() ([]domain.MatchJob, error) {
	var jobs []domain.MatchJob
	err := s.db.
		Where("status IN ?", []string{domain.MatchJobPending, domain.MatchJobRetrying}).
		Order("created_at asc").
		Find(&jobs).Error
	return jobs, err
}
