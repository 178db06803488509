package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fiamma-chain/AITradeNews/internal/decision"
	"github.com/fiamma-chain/AITradeNews/internal/executor"
)

type fakeUnit struct {
	name string

	mu      sync.Mutex
	signals []decision.Signal
	results []executor.VenueResult
	err     error
	delay   time.Duration
}

func (f *fakeUnit) Name() string { return f.name }

func (f *fakeUnit) Execute(ctx context.Context, signal decision.Signal) ([]executor.VenueResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return f.results, f.err
}

func (f *fakeUnit) seen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []Report
}

func (f *fakeReporter) RecordReport(ctx context.Context, report Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeReporter) all() []Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Report, len(f.reports))
	copy(out, f.reports)
	return out
}

func TestSubmit_FansOutToAllAgents(t *testing.T) {
	unitA := &fakeUnit{name: "agent-a"}
	unitB := &fakeUnit{name: "agent-b"}
	journal := &fakeReporter{}

	c := New([]Unit{unitA, unitB}, time.Minute, time.Minute, journal, nil)

	if !c.Submit(decision.NewSignal("test", "BTC", "listing", "")) {
		t.Fatal("expected signal to be accepted")
	}
	c.Wait()

	if unitA.seen() != 1 || unitB.seen() != 1 {
		t.Fatalf("both agents must receive the signal, got %d and %d", unitA.seen(), unitB.seen())
	}

	reports := journal.all()
	if len(reports) != 1 || !reports[0].Accepted || len(reports[0].Agents) != 2 {
		t.Fatalf("expected one accepted report with two agents, got %+v", reports)
	}
}

func TestSubmit_CooldownDropsDuplicate(t *testing.T) {
	unit := &fakeUnit{name: "agent-a"}
	journal := &fakeReporter{}
	c := New([]Unit{unit}, time.Minute, time.Minute, journal, nil)

	first := c.Submit(decision.NewSignal("test", "BTC", "listing", ""))
	second := c.Submit(decision.NewSignal("test", "BTC", "listing again", ""))
	c.Wait()

	if !first || second {
		t.Fatalf("expected first accepted and second dropped, got %v %v", first, second)
	}
	if unit.seen() != 1 {
		t.Fatalf("dropped signal must not reach agents, got %d executions", unit.seen())
	}

	var dropped int
	for _, r := range journal.all() {
		if !r.Accepted {
			dropped++
			if r.DropReason == "" {
				t.Error("dropped report must carry a reason")
			}
		}
	}
	if dropped != 1 {
		t.Fatalf("expected one dropped report, got %d", dropped)
	}
}

func TestSubmit_CooldownIsPerAsset(t *testing.T) {
	unit := &fakeUnit{name: "agent-a"}
	c := New([]Unit{unit}, time.Minute, time.Minute, nil, nil)

	if !c.Submit(decision.NewSignal("test", "BTC", "listing", "")) {
		t.Fatal("BTC signal must be accepted")
	}
	if !c.Submit(decision.NewSignal("test", "ETH", "listing", "")) {
		t.Fatal("ETH signal must not share BTC cooldown")
	}
	c.Wait()

	if unit.seen() != 2 {
		t.Fatalf("expected two executions, got %d", unit.seen())
	}
}

func TestSubmit_DuplicateDoesNotCancelInFlight(t *testing.T) {
	unit := &fakeUnit{name: "agent-a", delay: 50 * time.Millisecond}
	c := New([]Unit{unit}, time.Minute, time.Minute, nil, nil)

	c.Submit(decision.NewSignal("test", "BTC", "listing", ""))
	time.Sleep(10 * time.Millisecond)
	c.Submit(decision.NewSignal("test", "BTC", "dup", ""))
	c.Wait()

	if unit.seen() != 1 {
		t.Fatalf("in-flight execution must complete exactly once, got %d", unit.seen())
	}
}

func TestSubmit_AgentErrorIsolated(t *testing.T) {
	good := &fakeUnit{name: "agent-a", results: []executor.VenueResult{{Venue: "hyperliquid", Status: executor.LegSuccess}}}
	bad := &fakeUnit{name: "agent-b", err: context.DeadlineExceeded}
	journal := &fakeReporter{}

	c := New([]Unit{good, bad}, time.Minute, time.Minute, journal, nil)
	c.Submit(decision.NewSignal("test", "BTC", "listing", ""))
	c.Wait()

	reports := journal.all()
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}

	byAgent := map[string]AgentReport{}
	for _, a := range reports[0].Agents {
		byAgent[a.Agent] = a
	}
	if byAgent["agent-b"].Error == "" {
		t.Error("failing agent must report its error")
	}
	if byAgent["agent-a"].Error != "" || len(byAgent["agent-a"].Results) != 1 {
		t.Errorf("healthy agent must be unaffected, got %+v", byAgent["agent-a"])
	}
}

func TestSubmit_RejectsInvalidSignal(t *testing.T) {
	unit := &fakeUnit{name: "agent-a"}
	c := New([]Unit{unit}, time.Minute, time.Minute, nil, nil)

	if c.Submit(decision.Signal{}) {
		t.Fatal("empty signal must be rejected")
	}
	c.Wait()
	if unit.seen() != 0 {
		t.Fatal("rejected signal must not be dispatched")
	}
}
