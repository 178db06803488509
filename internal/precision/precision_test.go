package precision

import (
	"errors"
	"testing"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

func testTable() *Table {
	return NewTable(map[string]map[string]config.PrecisionSpec{
		"hyperliquid": {
			"BTC": {QuantityStep: 0.001, PriceStep: 0.5, MinQuantity: 0.001, MinNotional: 10},
			"ETH": {QuantityStep: 0.01, PriceStep: 0.05, MinQuantity: 0.01, MinNotional: 10},
		},
	})
}

func TestNormalizeQuantity_OpenRoundsDown(t *testing.T) {
	spec, ok := testTable().Lookup("hyperliquid", "BTC")
	if !ok {
		t.Fatal("expected BTC spec")
	}

	cases := []struct {
		in   float64
		want float64
	}{
		{0.0019, 0.001},
		{0.001, 0.001},
		{0.12349, 0.123},
		{0.0009, 0},
	}
	for _, tc := range cases {
		if got := spec.NormalizeQuantity(tc.in, RoundDown); got != tc.want {
			t.Errorf("RoundDown(%f): got %f want %f", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeQuantity_CloseRoundsHalfUp(t *testing.T) {
	spec, _ := testTable().Lookup("hyperliquid", "BTC")

	cases := []struct {
		in   float64
		want float64
	}{
		{0.0015, 0.002},
		{0.0014, 0.001},
		{0.0019, 0.002},
	}
	for _, tc := range cases {
		if got := spec.NormalizeQuantity(tc.in, RoundHalfUp); got != tc.want {
			t.Errorf("RoundHalfUp(%f): got %f want %f", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeQuantity_FloatArtifactNotUnderRounded(t *testing.T) {
	spec := Spec{QuantityStep: 0.1}
	// 0.1+0.2 在二进制下略大于 0.3，向下取整不能因此丢一个步长
	if got := spec.NormalizeQuantity(0.1+0.2, RoundDown); got != 0.3 {
		t.Fatalf("expected 0.3, got %v", got)
	}
}

func TestNormalizePrice_SnapsToTick(t *testing.T) {
	spec, _ := testTable().Lookup("hyperliquid", "BTC")

	if got := spec.NormalizePrice(50000.3); got != 50000.5 {
		t.Errorf("expected 50000.5, got %f", got)
	}
	if got := spec.NormalizePrice(50000.2); got != 50000 {
		t.Errorf("expected 50000, got %f", got)
	}
}

func TestGuardPrice_Direction(t *testing.T) {
	spec, _ := testTable().Lookup("hyperliquid", "BTC")

	buy := spec.GuardPrice(50000, venue.SideBuy, 0.01)
	if buy != 50500 {
		t.Errorf("expected buy guard 50500, got %f", buy)
	}
	sell := spec.GuardPrice(50000, venue.SideSell, 0.01)
	if sell != 49500 {
		t.Errorf("expected sell guard 49500, got %f", sell)
	}
}

func TestValidate_MinQuantityAndNotional(t *testing.T) {
	spec, _ := testTable().Lookup("hyperliquid", "ETH")

	var vErr *ValidationError

	err := spec.Validate(0.005, 3000)
	if !errors.As(err, &vErr) || vErr.Field != "min_quantity" {
		t.Fatalf("expected min_quantity violation, got %v", err)
	}

	err = spec.Validate(0.01, 500)
	if !errors.As(err, &vErr) || vErr.Field != "min_notional" {
		t.Fatalf("expected min_notional violation, got %v", err)
	}

	if err := spec.Validate(0.01, 3000); err != nil {
		t.Fatalf("expected valid order, got %v", err)
	}
}

func TestRequire_MissingSpec(t *testing.T) {
	table := testTable()

	var vErr *ValidationError
	_, err := table.Require("hyperliquid", "DOGE")
	if !errors.As(err, &vErr) || vErr.Field != "precision" {
		t.Fatalf("expected precision validation error, got %v", err)
	}

	if _, err := table.Require("Hyperliquid", "btc"); err != nil {
		t.Fatalf("lookup must be case-insensitive, got %v", err)
	}
}
