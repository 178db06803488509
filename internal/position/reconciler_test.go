package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

type fakeSource struct {
	name    string
	live    *venue.Position
	err     error
	queries int
}

func (f *fakeSource) Name() string {
	if f.name == "" {
		return "hyperliquid"
	}
	return f.name
}

func (f *fakeSource) GetPosition(ctx context.Context, asset string) (*venue.Position, error) {
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	if f.live == nil {
		return nil, nil
	}
	out := *f.live
	return &out, nil
}

func shortPosition(size float64) *venue.Position {
	return &venue.Position{
		Venue:      "hyperliquid",
		Asset:      "ASTER",
		Size:       -size,
		EntryPrice: 1.2,
		Timestamp:  time.Now().UTC(),
	}
}

func TestReconcileOpen_FlatVenue(t *testing.T) {
	r := NewReconciler(NewMemoryCache(), "hold", nil)
	source := &fakeSource{}

	plan, err := r.ReconcileOpen(context.Background(), source, "agent-a", "ASTER", venue.SideBuy)
	if err != nil {
		t.Fatalf("ReconcileOpen returned error: %v", err)
	}
	if plan.Action != ActionOpenOnly {
		t.Fatalf("expected open_only, got %s", plan.Action)
	}
}

func TestReconcileOpen_OppositeEmitsCloseThenOpen(t *testing.T) {
	r := NewReconciler(NewMemoryCache(), "hold", nil)
	source := &fakeSource{live: shortPosition(10)}

	plan, err := r.ReconcileOpen(context.Background(), source, "agent-a", "ASTER", venue.SideBuy)
	if err != nil {
		t.Fatalf("ReconcileOpen returned error: %v", err)
	}
	if plan.Action != ActionCloseThenOpen {
		t.Fatalf("expected close_then_open, got %s", plan.Action)
	}
	if plan.CloseQuantity != 10 {
		t.Errorf("close quantity must equal live magnitude, got %f", plan.CloseQuantity)
	}
	if plan.CloseSide != venue.SideBuy {
		t.Errorf("closing a short requires a buy, got %s", plan.CloseSide)
	}
}

func TestReconcileOpen_SameDirectionHold(t *testing.T) {
	r := NewReconciler(NewMemoryCache(), "hold", nil)
	source := &fakeSource{live: shortPosition(10)}

	plan, err := r.ReconcileOpen(context.Background(), source, "agent-a", "ASTER", venue.SideSell)
	if err != nil {
		t.Fatalf("ReconcileOpen returned error: %v", err)
	}
	if plan.Action != ActionNoop {
		t.Fatalf("hold policy must keep same-direction position, got %s", plan.Action)
	}
}

func TestReconcileOpen_SameDirectionReplace(t *testing.T) {
	r := NewReconciler(NewMemoryCache(), "replace", nil)
	source := &fakeSource{live: shortPosition(10)}

	plan, err := r.ReconcileOpen(context.Background(), source, "agent-a", "ASTER", venue.SideSell)
	if err != nil {
		t.Fatalf("ReconcileOpen returned error: %v", err)
	}
	if plan.Action != ActionCloseThenOpen {
		t.Fatalf("replace policy must refresh position, got %s", plan.Action)
	}
}

func TestReconcileOpen_Idempotent(t *testing.T) {
	r := NewReconciler(NewMemoryCache(), "hold", nil)
	source := &fakeSource{live: shortPosition(10)}

	first, err := r.ReconcileOpen(context.Background(), source, "agent-a", "ASTER", venue.SideSell)
	if err != nil {
		t.Fatalf("first reconcile error: %v", err)
	}
	second, err := r.ReconcileOpen(context.Background(), source, "agent-a", "ASTER", venue.SideSell)
	if err != nil {
		t.Fatalf("second reconcile error: %v", err)
	}
	if first.Action != ActionNoop || second.Action != ActionNoop {
		t.Fatalf("unchanged venue state must stay noop, got %s then %s", first.Action, second.Action)
	}
	if source.queries != 2 {
		t.Errorf("every reconcile must query live state, got %d queries", source.queries)
	}
}

func TestReconcileOpen_StaleCacheClearedWithoutError(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	_ = cache.Put(ctx, Snapshot{
		Agent: "agent-a", Venue: "hyperliquid", Asset: "ASTER",
		Size: 5, UpdatedAt: time.Now().UTC(),
	})

	r := NewReconciler(cache, "hold", nil)
	source := &fakeSource{}

	plan, err := r.ReconcileOpen(ctx, source, "agent-a", "ASTER", venue.SideBuy)
	if err != nil {
		t.Fatalf("stale cache must never produce an error: %v", err)
	}
	if plan.Action != ActionOpenOnly {
		t.Fatalf("expected open_only despite stale cache, got %s", plan.Action)
	}

	cached, _ := cache.Get(ctx, "agent-a", "hyperliquid", "ASTER")
	if cached != nil {
		t.Fatalf("stale cache entry must be cleared, got %+v", cached)
	}
}

func TestReconcileClose_FlatIsNoop(t *testing.T) {
	r := NewReconciler(NewMemoryCache(), "hold", nil)
	source := &fakeSource{}

	plan, err := r.ReconcileClose(context.Background(), source, "agent-a", "ASTER")
	if err != nil {
		t.Fatalf("ReconcileClose returned error: %v", err)
	}
	if plan.Action != ActionNoop {
		t.Fatalf("closing a flat position must be noop, got %s", plan.Action)
	}
}

func TestReconcileClose_UsesLiveMagnitude(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	// 缓存声称 3，平台实际 10，平仓必须按 10
	_ = cache.Put(ctx, Snapshot{Agent: "agent-a", Venue: "hyperliquid", Asset: "ASTER", Size: -3})

	r := NewReconciler(cache, "hold", nil)
	source := &fakeSource{live: shortPosition(10)}

	plan, err := r.ReconcileClose(ctx, source, "agent-a", "ASTER")
	if err != nil {
		t.Fatalf("ReconcileClose returned error: %v", err)
	}
	if plan.Action != ActionCloseOnly || plan.CloseQuantity != 10 {
		t.Fatalf("close must use live magnitude 10, got %s qty=%f", plan.Action, plan.CloseQuantity)
	}
}

func TestReconcileOpen_VenueErrorPropagates(t *testing.T) {
	wantErr := errors.New("venue down")
	r := NewReconciler(NewMemoryCache(), "hold", nil)
	source := &fakeSource{err: wantErr}

	if _, err := r.ReconcileOpen(context.Background(), source, "agent-a", "ASTER", venue.SideBuy); !errors.Is(err, wantErr) {
		t.Fatalf("expected venue error, got %v", err)
	}
}
