package risk

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fiamma-chain/AITradeNews/internal/config"
)

func newTestGuard(t *testing.T, cfg config.TradingConfig) *Guard {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	guard, err := NewGuard(db, cfg, nil)
	if err != nil {
		t.Fatalf("NewGuard returned error: %v", err)
	}
	return guard
}

func TestCheck_FirstSeenInitializesDay(t *testing.T) {
	guard := newTestGuard(t, config.TradingConfig{MaxDailyLoss: 0.10})
	ctx := context.Background()

	status, err := guard.Check(ctx, "agent-a", 1000)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if status.Halted {
		t.Fatal("fresh day must not be halted")
	}
	if status.StartEquity != 1000 {
		t.Errorf("expected start equity 1000, got %f", status.StartEquity)
	}
}

func TestCheck_DailyLossHalts(t *testing.T) {
	guard := newTestGuard(t, config.TradingConfig{MaxDailyLoss: 0.10})
	ctx := context.Background()

	if _, err := guard.Check(ctx, "agent-a", 1000); err != nil {
		t.Fatalf("initial check: %v", err)
	}

	status, err := guard.Check(ctx, "agent-a", 880)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !status.Halted {
		t.Fatalf("12%% loss must halt, status=%+v", status)
	}

	// 净值恢复后当日仍保持停交易
	status, err = guard.Check(ctx, "agent-a", 1100)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !status.Halted {
		t.Fatal("halt must be sticky for the rest of the day")
	}
}

func TestCheck_TradeCountHalts(t *testing.T) {
	guard := newTestGuard(t, config.TradingConfig{MaxDailyTrades: 2})
	ctx := context.Background()

	if _, err := guard.Check(ctx, "agent-a", 1000); err != nil {
		t.Fatalf("initial check: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := guard.RecordTrade(ctx, "agent-a"); err != nil {
			t.Fatalf("RecordTrade returned error: %v", err)
		}
	}

	status, err := guard.Check(ctx, "agent-a", 1000)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !status.Halted {
		t.Fatalf("trade limit must halt, status=%+v", status)
	}
}

func TestCheck_AgentsIsolated(t *testing.T) {
	guard := newTestGuard(t, config.TradingConfig{MaxDailyLoss: 0.10})
	ctx := context.Background()

	if _, err := guard.Check(ctx, "agent-a", 1000); err != nil {
		t.Fatalf("agent-a check: %v", err)
	}
	if _, err := guard.Check(ctx, "agent-a", 850); err != nil {
		t.Fatalf("agent-a loss check: %v", err)
	}

	status, err := guard.Check(ctx, "agent-b", 1000)
	if err != nil {
		t.Fatalf("agent-b check: %v", err)
	}
	if status.Halted {
		t.Fatal("agent-b must not inherit agent-a halt")
	}
}
