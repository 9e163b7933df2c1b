package storage

import (
	"path/filepath"
	"testing"
	"time"

	"exchange_go/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test storage: %v", err)
	}
	return store
}

func insertOrder(t *testing.T, s *Storage, symbol, side, price string, amount string, createdAt time.Time) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:        uuid.NewString(),
		AccountID: uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Price:     decimal.RequireFromString(price),
		Amount:    decimal.RequireFromString(amount),
		Status:    domain.OrderStatusOpen,
		CreatedAt: createdAt,
	}
	if err := s.db.Create(order).Error; err != nil {
		t.Fatalf("failed to insert order: %v", err)
	}
	return order
}

func TestEnsureAccount(t *testing.T) {
	s := setupTestStorage(t)

	holdings := map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("1"),
		"ETH": decimal.RequireFromString("10"),
	}

	first, err := s.EnsureAccount("Alice", "alice@example.com", decimal.RequireFromString("50000"), holdings)
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	// Idempotent: a second call must not create a duplicate or reset state.
	second, err := s.EnsureAccount("Alice", "alice@example.com", decimal.RequireFromString("99999"), nil)
	if err != nil {
		t.Fatalf("second EnsureAccount failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same account id, got %s and %s", first.ID, second.ID)
	}
	if !second.Balance.Equal(decimal.RequireFromString("50000")) {
		t.Errorf("seeding must not overwrite an existing balance, got %s", second.Balance)
	}

	var count int64
	s.db.Model(&domain.AssetHolding{}).Where("account_id = ?", first.ID).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 holdings, got %d", count)
	}
}

func TestLockOrCreateHolding(t *testing.T) {
	s := setupTestStorage(t)
	accountID := uuid.NewString()

	err := s.Transaction(func(tx *gorm.DB) error {
		holding, err := s.LockOrCreateHolding(tx, accountID, "BTC")
		if err != nil {
			return err
		}
		if !holding.Available.IsZero() || !holding.Locked.IsZero() {
			t.Errorf("lazily created holding must start at zero, got %s/%s",
				holding.Available, holding.Locked)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	// Second lookup finds the created row.
	err = s.Transaction(func(tx *gorm.DB) error {
		holding, err := s.LockHolding(tx, accountID, "BTC")
		if err != nil {
			return err
		}
		if holding == nil {
			t.Fatal("holding should exist after lazy creation")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestFindMatchCandidate_PricePriority(t *testing.T) {
	s := setupTestStorage(t)
	now := time.Now()

	insertOrder(t, s, "BTC", domain.SideSell, "510", "1", now)
	cheap := insertOrder(t, s, "BTC", domain.SideSell, "490", "1", now)
	insertOrder(t, s, "BTC", domain.SideSell, "505", "1", now)

	buy := insertOrder(t, s, "BTC", domain.SideBuy, "520", "1", now)

	err := s.Transaction(func(tx *gorm.DB) error {
		candidate, err := s.FindMatchCandidate(tx, buy)
		if err != nil {
			return err
		}
		if candidate == nil {
			t.Fatal("expected a candidate")
		}
		if candidate.ID != cheap.ID {
			t.Errorf("expected cheapest sell %s, got %s at price %s",
				cheap.ID, candidate.ID, candidate.Price)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestFindMatchCandidate_TimePriority(t *testing.T) {
	s := setupTestStorage(t)
	base := time.Now().Add(-time.Hour)

	earliest := insertOrder(t, s, "BTC", domain.SideSell, "500", "1", base)
	insertOrder(t, s, "BTC", domain.SideSell, "500", "1", base.Add(time.Minute))

	buy := insertOrder(t, s, "BTC", domain.SideBuy, "500", "1", time.Now())

	err := s.Transaction(func(tx *gorm.DB) error {
		candidate, err := s.FindMatchCandidate(tx, buy)
		if err != nil {
			return err
		}
		if candidate == nil {
			t.Fatal("expected a candidate")
		}
		if candidate.ID != earliest.ID {
			t.Errorf("equal prices must resolve to the earliest order")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestFindMatchCandidate_SellSeeksHighestBuy(t *testing.T) {
	s := setupTestStorage(t)
	now := time.Now()

	insertOrder(t, s, "ETH", domain.SideBuy, "105", "1", now)
	best := insertOrder(t, s, "ETH", domain.SideBuy, "110", "1", now)

	sell := insertOrder(t, s, "ETH", domain.SideSell, "100", "1", now)

	err := s.Transaction(func(tx *gorm.DB) error {
		candidate, err := s.FindMatchCandidate(tx, sell)
		if err != nil {
			return err
		}
		if candidate == nil {
			t.Fatal("expected a candidate")
		}
		if candidate.ID != best.ID {
			t.Errorf("expected highest-paying buy %s, got %s", best.ID, candidate.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestFindMatchCandidate_IgnoresIncompatible(t *testing.T) {
	s := setupTestStorage(t)
	now := time.Now()

	// Price outside the limit, wrong symbol, and non-open orders must all
	// be invisible to matching.
	insertOrder(t, s, "BTC", domain.SideSell, "600", "1", now)
	insertOrder(t, s, "ETH", domain.SideSell, "400", "1", now)
	filled := insertOrder(t, s, "BTC", domain.SideSell, "400", "1", now)
	s.db.Model(filled).Update("status", domain.OrderStatusFilled)

	buy := insertOrder(t, s, "BTC", domain.SideBuy, "500", "1", now)

	err := s.Transaction(func(tx *gorm.DB) error {
		candidate, err := s.FindMatchCandidate(tx, buy)
		if err != nil {
			return err
		}
		if candidate != nil {
			t.Errorf("expected no candidate, got %s", candidate.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestOpenOrders_Sorting(t *testing.T) {
	s := setupTestStorage(t)
	base := time.Now().Add(-time.Hour)

	insertOrder(t, s, "BTC", domain.SideBuy, "480", "1", base.Add(2*time.Minute))
	insertOrder(t, s, "BTC", domain.SideBuy, "500", "1", base.Add(time.Minute))
	first := insertOrder(t, s, "BTC", domain.SideBuy, "500", "1", base)
	insertOrder(t, s, "BTC", domain.SideSell, "520", "1", base)
	insertOrder(t, s, "BTC", domain.SideSell, "510", "1", base)

	buys, err := s.OpenOrders("BTC", domain.SideBuy)
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(buys) != 3 {
		t.Fatalf("expected 3 buys, got %d", len(buys))
	}
	if buys[0].ID != first.ID {
		t.Error("buys must sort by price desc then created_at asc")
	}

	sells, err := s.OpenOrders("BTC", domain.SideSell)
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(sells) != 2 {
		t.Fatalf("expected 2 sells, got %d", len(sells))
	}
	if !sells[0].Price.Equal(decimal.RequireFromString("510")) {
		t.Error("sells must sort by price asc")
	}
}

func TestMatchJobLifecycle(t *testing.T) {
	s := setupTestStorage(t)

	job, err := s.CreateMatchJob("order-1")
	if err != nil {
		t.Fatalf("CreateMatchJob failed: %v", err)
	}
	if job.Status != domain.MatchJobPending {
		t.Errorf("new job should be pending, got %s", job.Status)
	}

	pending, err := s.PendingMatchJobs()
	if err != nil {
		t.Fatalf("PendingMatchJobs failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending job, got %d", len(pending))
	}

	// A job waiting out a backoff is invisible to the sweep but still
	// recoverable after a restart.
	job.Status = domain.MatchJobRetrying
	job.Attempts = 1
	if err := s.UpdateMatchJob(job); err != nil {
		t.Fatalf("UpdateMatchJob failed: %v", err)
	}

	pending, err = s.PendingMatchJobs()
	if err != nil {
		t.Fatalf("PendingMatchJobs failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("retrying jobs must not be pending, got %d", len(pending))
	}

	recoverable, err := s.RecoverableMatchJobs()
	if err != nil {
		t.Fatalf("RecoverableMatchJobs failed: %v", err)
	}
	if len(recoverable) != 1 {
		t.Fatalf("expected 1 recoverable job, got %d", len(recoverable))
	}

	job.Status = domain.MatchJobDone
	if err := s.UpdateMatchJob(job); err != nil {
		t.Fatalf("UpdateMatchJob failed: %v", err)
	}

	pending, err = s.PendingMatchJobs()
	if err != nil {
		t.Fatalf("PendingMatchJobs failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("done jobs must not be pending, got %d", len(pending))
	}
	recoverable, err = s.RecoverableMatchJobs()
	if err != nil {
		t.Fatalf("RecoverableMatchJobs failed: %v", err)
	}
	if len(recoverable) != 0 {
		t.Errorf("done jobs must not be recoverable, got %d", len(recoverable))
	}
}
