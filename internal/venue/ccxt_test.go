package venue

import (
	"context"
	"errors"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

type fakeExchange struct {
	calls []string

	balances    ccxt.Balances
	positions   []ccxt.Position
	ticker      ccxt.Ticker
	market      interface{}
	order       ccxt.Order
	orderErrs   []error
	limitPrices []float64
	limitSides  []string
	limitParams []map[string]interface{}
}

func (f *fakeExchange) LoadMarkets(params ...interface{}) (map[string]ccxt.MarketInterface, error) {
	f.calls = append(f.calls, "LoadMarkets")
	return nil, nil
}

func (f *fakeExchange) Market(symbol string) interface{} {
	f.calls = append(f.calls, "Market")
	return f.market
}

func (f *fakeExchange) FetchBalance(params ...interface{}) (ccxt.Balances, error) {
	f.calls = append(f.calls, "FetchBalance")
	return f.balances, nil
}

func (f *fakeExchange) FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error) {
	f.calls = append(f.calls, "FetchPositions")
	return f.positions, nil
}

func (f *fakeExchange) FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error) {
	f.calls = append(f.calls, "FetchTicker")
	return f.ticker, nil
}

func (f *fakeExchange) nextOrderErr() error {
	if len(f.orderErrs) == 0 {
		return nil
	}
	err := f.orderErrs[0]
	f.orderErrs = f.orderErrs[1:]
	return err
}

func (f *fakeExchange) CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error) {
	f.calls = append(f.calls, "CreateLimitOrder")
	f.limitPrices = append(f.limitPrices, price)
	f.limitSides = append(f.limitSides, side)
	params := map[string]interface{}{}
	for _, opt := range options {
		o := ccxt.CreateLimitOrderOptionsStruct{}
		opt(&o)
		if o.Params != nil {
			params = *o.Params
		}
	}
	f.limitParams = append(f.limitParams, params)
	if err := f.nextOrderErr(); err != nil {
		return ccxt.Order{}, err
	}
	return f.order, nil
}

func (f *fakeExchange) CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error) {
	f.calls = append(f.calls, "CreateMarketOrder")
	if err := f.nextOrderErr(); err != nil {
		return ccxt.Order{}, err
	}
	return f.order, nil
}

func (f *fakeExchange) CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error) {
	f.calls = append(f.calls, "CancelOrder")
	return ccxt.Order{}, nil
}

func (f *fakeExchange) SetLeverage(leverage int64, options ...ccxt.SetLeverageOptions) (map[string]interface{}, error) {
	f.calls = append(f.calls, "SetLeverage")
	return nil, nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestAdapter(fake *fakeExchange) *CCXTAdapter {
	return newCCXTAdapter("hyperliquid", fake, map[string]string{"BTC": "BTC/USDC:USDC"}, fastPolicy(), nil)
}

func ptrFloat(v float64) *float64 { return &v }
func ptrString(v string) *string  { return &v }

func TestPlaceOrder_MarketIntentUsesGuardLimit(t *testing.T) {
	fake := &fakeExchange{
		order: ccxt.Order{
			Id:     ptrString("oid-1"),
			Status: ptrString("closed"),
			Filled: ptrFloat(0.5),
		},
	}
	adapter := newTestAdapter(fake)

	result, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Asset:    "BTC",
		Side:     SideBuy,
		Quantity: 0.5,
		Price:    50500,
		Market:   true,
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if len(fake.limitPrices) != 1 || fake.limitPrices[0] != 50500 {
		t.Fatalf("expected guard limit order at 50500, got %v", fake.limitPrices)
	}
	for _, call := range fake.calls {
		if call == "CreateMarketOrder" {
			t.Fatalf("market intent must not reach CreateMarketOrder")
		}
	}
	if result.OrderID != "oid-1" {
		t.Errorf("expected order id oid-1, got %s", result.OrderID)
	}
}

func TestPlaceOrder_ReduceOnlyParamForwarded(t *testing.T) {
	fake := &fakeExchange{order: ccxt.Order{Id: ptrString("oid-2")}}
	adapter := newTestAdapter(fake)

	_, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Asset:      "BTC",
		Side:       SideSell,
		Quantity:   1,
		Price:      49000,
		Market:     true,
		ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if len(fake.limitParams) != 1 {
		t.Fatalf("expected one limit order, got %d", len(fake.limitParams))
	}
	if v, ok := fake.limitParams[0]["reduceOnly"].(bool); !ok || !v {
		t.Errorf("expected reduceOnly=true param, got %v", fake.limitParams[0])
	}
}

func TestPlaceOrder_RetriesRateLimit(t *testing.T) {
	fake := &fakeExchange{
		order: ccxt.Order{Id: ptrString("oid-3")},
		orderErrs: []error{
			&ccxt.Error{Type: ccxt.RateLimitExceededErrType, Message: "too many requests"},
		},
	}
	adapter := newTestAdapter(fake)

	result, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Asset:    "BTC",
		Side:     SideBuy,
		Quantity: 1,
		Price:    50000,
		Market:   true,
	})
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if result.OrderID != "oid-3" {
		t.Errorf("expected order id oid-3, got %s", result.OrderID)
	}
	if len(fake.limitPrices) != 2 {
		t.Errorf("expected 2 submission attempts, got %d", len(fake.limitPrices))
	}
}

func TestPlaceOrder_NonRetryableFailsFast(t *testing.T) {
	fake := &fakeExchange{
		orderErrs: []error{
			&ccxt.Error{Type: ccxt.InsufficientFundsErrType, Message: "insufficient margin"},
		},
	}
	adapter := newTestAdapter(fake)

	_, err := adapter.PlaceOrder(context.Background(), OrderRequest{
		Asset:    "BTC",
		Side:     SideBuy,
		Quantity: 1,
		Price:    50000,
		Market:   true,
	})
	if err == nil {
		t.Fatal("expected error for insufficient funds")
	}
	if len(fake.limitPrices) != 1 {
		t.Errorf("non-retryable error must not be retried, attempts=%d", len(fake.limitPrices))
	}

	var venueErr *Error
	if !errors.As(err, &venueErr) {
		t.Fatalf("expected *venue.Error wrapper, got %T", err)
	}
	if venueErr.Venue != "hyperliquid" || venueErr.Op != "place_order" {
		t.Errorf("unexpected wrapper fields: %+v", venueErr)
	}
}

func TestGetPosition_ShortSizeIsNegative(t *testing.T) {
	fake := &fakeExchange{
		positions: []ccxt.Position{
			{
				Symbol:        ptrString("BTC/USDC:USDC"),
				Side:          ptrString("short"),
				Contracts:     ptrFloat(0.8),
				EntryPrice:    ptrFloat(51000),
				MarkPrice:     ptrFloat(50500),
				Leverage:      ptrFloat(10),
				UnrealizedPnl: ptrFloat(400),
			},
		},
	}
	adapter := newTestAdapter(fake)

	pos, err := adapter.GetPosition(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}
	if pos == nil {
		t.Fatal("expected a position, got nil")
	}
	if pos.Size != -0.8 {
		t.Errorf("expected signed size -0.8, got %f", pos.Size)
	}
	if pos.Venue != "hyperliquid" || pos.Asset != "BTC" {
		t.Errorf("unexpected identity: %+v", pos)
	}
}

func TestGetPosition_FlatReturnsNil(t *testing.T) {
	fake := &fakeExchange{}
	adapter := newTestAdapter(fake)

	pos, err := adapter.GetPosition(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}
	if pos != nil {
		t.Fatalf("expected nil position for flat account, got %+v", pos)
	}
}

func TestSymbolNotMapped(t *testing.T) {
	adapter := newTestAdapter(&fakeExchange{})

	_, err := adapter.GetMarkPrice(context.Background(), "DOGE")
	if !errors.Is(err, ErrSymbolNotMapped) {
		t.Fatalf("expected ErrSymbolNotMapped, got %v", err)
	}
}

func TestGetAccountInfo_ParsesStableBalances(t *testing.T) {
	fake := &fakeExchange{
		balances: ccxt.Balances{
			Total: map[string]*float64{"USDC": ptrFloat(1200)},
			Free:  map[string]*float64{"USDC": ptrFloat(800)},
		},
	}
	adapter := newTestAdapter(fake)

	info, err := adapter.GetAccountInfo(context.Background())
	if err != nil {
		t.Fatalf("GetAccountInfo returned error: %v", err)
	}
	if info.TotalEquity != 1200 {
		t.Errorf("expected equity 1200, got %f", info.TotalEquity)
	}
	if info.AvailableBalance != 800 {
		t.Errorf("expected available 800, got %f", info.AvailableBalance)
	}
}

func TestGetMaxLeverage_ReadsMarketLimits(t *testing.T) {
	fake := &fakeExchange{
		market: map[string]interface{}{
			"limits": map[string]interface{}{
				"leverage": map[string]interface{}{"max": 5.0},
			},
		},
	}
	adapter := newTestAdapter(fake)

	max, err := adapter.GetMaxLeverage(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetMaxLeverage returned error: %v", err)
	}
	if max != 5 {
		t.Errorf("expected max leverage 5, got %f", max)
	}
}
