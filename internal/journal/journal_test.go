package journal

import (
	"context"
	"testing"
	"time"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/coordinator"
	"github.com/fiamma-chain/AITradeNews/internal/executor"
	"github.com/fiamma-chain/AITradeNews/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	service, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return service
}

func sampleReport(signalID, asset string, accepted bool) coordinator.Report {
	return coordinator.Report{
		SignalID:    signalID,
		Source:      "binance_listing",
		Asset:       asset,
		Headline:    "listing",
		Accepted:    accepted,
		SubmittedAt: time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
		Agents: []coordinator.AgentReport{
			{
				Agent: "agent-a",
				Results: []executor.VenueResult{
					{Agent: "agent-a", Venue: "hyperliquid", Asset: asset, Status: executor.LegSuccess, OrderID: "oid"},
				},
			},
		},
	}
}

func TestRecordAndListReports(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if err := service.RecordReport(ctx, sampleReport("sig-1", "BTC", true)); err != nil {
		t.Fatalf("RecordReport returned error: %v", err)
	}
	if err := service.RecordReport(ctx, sampleReport("sig-2", "ETH", false)); err != nil {
		t.Fatalf("RecordReport returned error: %v", err)
	}

	all, err := service.ListReports(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListReports returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
	// 最近的在前
	if all[0].SignalID != "sig-2" {
		t.Errorf("expected newest first, got %s", all[0].SignalID)
	}

	btc, err := service.ListReports(ctx, "BTC", 10)
	if err != nil {
		t.Fatalf("ListReports by asset returned error: %v", err)
	}
	if len(btc) != 1 || btc[0].SignalID != "sig-1" {
		t.Fatalf("expected only BTC report, got %+v", btc)
	}
	if len(btc[0].Agents) != 1 || btc[0].Agents[0].Results[0].OrderID != "oid" {
		t.Errorf("nested payload must round-trip, got %+v", btc[0].Agents)
	}
}
