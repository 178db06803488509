package decision

import (
	"errors"
	"math"
	"testing"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		ConfidenceFloor: 60,
		MinLeverage:     10,
		MaxLeverage:     50,
		MinMarginPct:    0.30,
		MaxMarginPct:    1.00,
		StopLossPct:     0.05,
		TakeProfitPct:   0.10,
	}
}

func TestMap_CarriesAdvisoryBounds(t *testing.T) {
	mapper := NewMapper(testTradingConfig())

	intent, err := mapper.Map("BTC", Decision{Direction: DirectionLong, Confidence: 80, Reasoning: "ok"}, 0)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if intent.StopLossPct != 0.05 || intent.TakeProfitPct != 0.10 {
		t.Errorf("advisory bounds must come from config, got %+v", intent)
	}
}

func TestMap_LinearInterpolation(t *testing.T) {
	mapper := NewMapper(testTradingConfig())

	intent, err := mapper.Map("BTC", Decision{
		Direction:  DirectionLong,
		Confidence: 90,
		Reasoning:  "major listing",
	}, 0)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}

	if intent.Side != venue.SideBuy {
		t.Errorf("expected buy side, got %s", intent.Side)
	}
	// (90-60)/(100-60)=0.75 → leverage 10+0.75*40=40, margin 0.30+0.75*0.70=0.825
	if math.Abs(intent.Leverage-40) > 1e-9 {
		t.Errorf("expected leverage 40, got %f", intent.Leverage)
	}
	if math.Abs(intent.MarginPct-0.825) > 1e-9 {
		t.Errorf("expected margin 0.825, got %f", intent.MarginPct)
	}
}

func TestMap_Boundaries(t *testing.T) {
	mapper := NewMapper(testTradingConfig())

	atFloor, err := mapper.Map("BTC", Decision{Direction: DirectionShort, Confidence: 60, Reasoning: "r"}, 0)
	if err != nil {
		t.Fatalf("Map at floor returned error: %v", err)
	}
	if atFloor.Leverage != 10 || math.Abs(atFloor.MarginPct-0.30) > 1e-9 {
		t.Errorf("floor confidence must map to minimums, got lev=%f margin=%f", atFloor.Leverage, atFloor.MarginPct)
	}
	if atFloor.Side != venue.SideSell {
		t.Errorf("expected sell side for short, got %s", atFloor.Side)
	}

	atMax, err := mapper.Map("BTC", Decision{Direction: DirectionLong, Confidence: 100, Reasoning: "r"}, 0)
	if err != nil {
		t.Fatalf("Map at 100 returned error: %v", err)
	}
	if atMax.Leverage != 50 || math.Abs(atMax.MarginPct-1.0) > 1e-9 {
		t.Errorf("full confidence must map to maximums, got lev=%f margin=%f", atMax.Leverage, atMax.MarginPct)
	}
}

func TestMap_VenueMaxLeverageWins(t *testing.T) {
	mapper := NewMapper(testTradingConfig())

	intent, err := mapper.Map("BTC", Decision{Direction: DirectionLong, Confidence: 100, Reasoning: "r"}, 5)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if intent.Leverage != 5 {
		t.Errorf("venue cap must win over computed leverage, got %f", intent.Leverage)
	}
}

func TestMap_NoTradeAndLowConfidence(t *testing.T) {
	mapper := NewMapper(testTradingConfig())

	if _, err := mapper.Map("BTC", Decision{Direction: DirectionNone, Confidence: 95}, 0); !errors.Is(err, ErrNoTrade) {
		t.Fatalf("expected ErrNoTrade, got %v", err)
	}
	if _, err := mapper.Map("BTC", Decision{Direction: DirectionLong, Confidence: 59.9, Reasoning: "r"}, 0); !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", err)
	}
}

func TestMap_RejectsInvalidDecision(t *testing.T) {
	mapper := NewMapper(testTradingConfig())

	if _, err := mapper.Map("BTC", Decision{Direction: "sideways", Confidence: 80, Reasoning: "r"}, 0); err == nil {
		t.Fatal("expected validation error for unknown direction")
	}
	if _, err := mapper.Map("BTC", Decision{Direction: DirectionLong, Confidence: 120, Reasoning: "r"}, 0); err == nil {
		t.Fatal("expected validation error for confidence out of range")
	}
}
