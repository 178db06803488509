package venue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

// ccxtExchange 为适配器依赖的 ccxt 方法子集。
type ccxtExchange interface {
	LoadMarkets(params ...interface{}) (map[string]ccxt.MarketInterface, error)
	Market(symbol string) interface{}
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error)
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error)
	SetLeverage(leverage int64, options ...ccxt.SetLeverageOptions) (map[string]interface{}, error)
}

// CCXTAdapter 基于 ccxt 统一实现 Adapter 契约。
// 所有平台调用都经过统一的重试包装，并发安全。
type CCXTAdapter struct {
	name     string
	exchange ccxtExchange
	markets  map[string]string
	policy   RetryPolicy
	logger   *zap.Logger

	marketsMu     sync.Mutex
	marketsLoaded bool
}

func newCCXTAdapter(name string, exchange ccxtExchange, markets map[string]string, policy RetryPolicy, logger *zap.Logger) *CCXTAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	normalized := make(map[string]string, len(markets))
	for asset, symbol := range markets {
		normalized[strings.ToUpper(strings.TrimSpace(asset))] = symbol
	}

	return &CCXTAdapter{
		name:     name,
		exchange: exchange,
		markets:  normalized,
		policy:   policy,
		logger:   logger.With(zap.String("venue", name)),
	}
}

// Name 返回平台名称。
func (a *CCXTAdapter) Name() string {
	return a.name
}

func (a *CCXTAdapter) symbolFor(asset string) (string, error) {
	symbol, ok := a.markets[strings.ToUpper(strings.TrimSpace(asset))]
	if !ok {
		return "", fmt.Errorf("%w: %s@%s", ErrSymbolNotMapped, asset, a.name)
	}
	return symbol, nil
}

func (a *CCXTAdapter) ensureMarketsLoaded(ctx context.Context) error {
	if a.marketsLoaded {
		return nil
	}

	a.marketsMu.Lock()
	defer a.marketsMu.Unlock()

	if a.marketsLoaded {
		return nil
	}

	loadErr := call(ctx, a.logger, a.policy, a.name, "load_markets", func() error {
		_, err := a.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	a.marketsLoaded = true
	a.logger.Info("已完成市场元数据加载", zap.Int("markets", len(a.markets)))
	return nil
}

// GetAccountInfo 获取账户权益与可用余额。
func (a *CCXTAdapter) GetAccountInfo(ctx context.Context) (AccountInfo, error) {
	var balances ccxt.Balances

	err := call(ctx, a.logger, a.policy, a.name, "fetch_balance", func() error {
		result, err := a.exchange.FetchBalance()
		if err != nil {
			return err
		}
		balances = result
		return nil
	})
	if err != nil {
		return AccountInfo{}, err
	}

	info := AccountInfo{Timestamp: time.Now().UTC()}

	if balances.Total != nil {
		for _, code := range []string{"USDC", "USD", "USDT"} {
			if total, ok := balances.Total[code]; ok && total != nil && *total > 0 {
				info.TotalEquity = *total
				break
			}
		}
	}
	if balances.Free != nil {
		for _, code := range []string{"USDC", "USD", "USDT"} {
			if free, ok := balances.Free[code]; ok && free != nil {
				info.AvailableBalance = *free
				break
			}
		}
	}
	if balances.Info != nil {
		if summary, ok := balances.Info["marginSummary"].(map[string]interface{}); ok {
			if info.TotalEquity == 0 {
				if v := parseNumeric(summary["accountValue"]); v > 0 {
					info.TotalEquity = v
				}
			}
		}
		if v := parseNumeric(balances.Info["withdrawable"]); v > 0 {
			info.AvailableBalance = v
		}
	}

	if info.TotalEquity == 0 {
		info.TotalEquity = info.AvailableBalance
	}

	return info, nil
}

// GetPosition 获取指定币种的实时仓位，无仓位时返回 nil。
func (a *CCXTAdapter) GetPosition(ctx context.Context, asset string) (*Position, error) {
	symbol, err := a.symbolFor(asset)
	if err != nil {
		return nil, err
	}

	var raw []ccxt.Position
	err = call(ctx, a.logger, a.policy, a.name, "fetch_positions", func() error {
		result, err := a.exchange.FetchPositions()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, rawPos := range raw {
		if !strings.EqualFold(derefString(rawPos.Symbol), symbol) {
			continue
		}

		size := derefFloat(rawPos.Contracts)
		if size == 0 {
			continue
		}

		side := strings.ToLower(strings.TrimSpace(derefString(rawPos.Side)))
		if side == "short" {
			size = -size
		}

		mark := derefFloat(rawPos.MarkPrice)
		if mark == 0 && rawPos.Info != nil {
			if positionInfo, ok := rawPos.Info["position"].(map[string]interface{}); ok {
				mark = parseNumeric(positionInfo["markPx"])
			}
		}

		return &Position{
			Venue:         a.name,
			Asset:         strings.ToUpper(asset),
			Size:          size,
			EntryPrice:    derefFloat(rawPos.EntryPrice),
			MarkPrice:     mark,
			Leverage:      derefFloat(rawPos.Leverage),
			UnrealizedPnl: derefFloat(rawPos.UnrealizedPnl),
			Timestamp:     now,
		}, nil
	}

	return nil, nil
}

// GetMarkPrice 获取最新标记价格。
func (a *CCXTAdapter) GetMarkPrice(ctx context.Context, asset string) (float64, error) {
	symbol, err := a.symbolFor(asset)
	if err != nil {
		return 0, err
	}

	var ticker ccxt.Ticker
	err = call(ctx, a.logger, a.policy, a.name, "fetch_ticker", func() error {
		result, err := a.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}
		ticker = result
		return nil
	})
	if err != nil {
		return 0, err
	}

	price := derefFloat(ticker.Last)
	if price == 0 {
		price = derefFloat(ticker.Close)
	}
	if price <= 0 {
		return 0, &Error{Venue: a.name, Op: "fetch_ticker", Err: fmt.Errorf("行情价格无效: %s", symbol)}
	}
	return price, nil
}

// GetMaxLeverage 从市场元数据读取平台允许的最大杠杆，读不到时返回0。
func (a *CCXTAdapter) GetMaxLeverage(ctx context.Context, asset string) (float64, error) {
	symbol, err := a.symbolFor(asset)
	if err != nil {
		return 0, err
	}

	if err := a.ensureMarketsLoaded(ctx); err != nil {
		return 0, err
	}

	market := a.exchange.Market(symbol)
	marketMap, ok := market.(map[string]interface{})
	if !ok {
		return 0, nil
	}
	limits, _ := marketMap["limits"].(map[string]interface{})
	if limits == nil {
		return 0, nil
	}
	leverage, _ := limits["leverage"].(map[string]interface{})
	if leverage == nil {
		return 0, nil
	}
	return parseNumeric(leverage["max"]), nil
}

// SetLeverage 将目标杠杆推送到平台。
func (a *CCXTAdapter) SetLeverage(ctx context.Context, asset string, leverage int) error {
	symbol, err := a.symbolFor(asset)
	if err != nil {
		return err
	}
	if leverage <= 0 {
		return fmt.Errorf("venue: 杠杆必须为正: %d", leverage)
	}

	return call(ctx, a.logger, a.policy, a.name, "set_leverage", func() error {
		_, err := a.exchange.SetLeverage(int64(leverage), ccxt.WithSetLeverageSymbol(symbol))
		return err
	})
}

// PlaceOrder 提交订单。
// 市价意图一律转换为护栏限价单提交，避免无界滑点；护栏价由调用方给出。
func (a *CCXTAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	symbol, err := a.symbolFor(req.Asset)
	if err != nil {
		return OrderResult{}, err
	}
	if req.Quantity <= 0 {
		return OrderResult{}, fmt.Errorf("venue: 下单数量无效: %.8f", req.Quantity)
	}

	params := map[string]interface{}{}
	if req.ReduceOnly {
		params["reduceOnly"] = true
	}
	if req.ClientOrderID != "" {
		params["clientOrderId"] = req.ClientOrderID
	}

	var order ccxt.Order
	err = call(ctx, a.logger, a.policy, a.name, "place_order", func() error {
		var callErr error
		switch {
		case req.Market && req.Price > 0:
			order, callErr = a.exchange.CreateLimitOrder(
				symbol, string(req.Side), req.Quantity, req.Price,
				ccxt.WithCreateLimitOrderParams(params),
			)
		case req.Market:
			order, callErr = a.exchange.CreateMarketOrder(
				symbol, string(req.Side), req.Quantity,
				ccxt.WithCreateMarketOrderParams(params),
			)
		default:
			if req.Price <= 0 {
				return fmt.Errorf("venue: 限价单价格无效: %.8f", req.Price)
			}
			order, callErr = a.exchange.CreateLimitOrder(
				symbol, string(req.Side), req.Quantity, req.Price,
				ccxt.WithCreateLimitOrderParams(params),
			)
		}
		return callErr
	})
	if err != nil {
		return OrderResult{}, err
	}

	result := OrderResult{
		OrderID:        derefString(order.Id),
		Status:         derefString(order.Status),
		FilledQuantity: derefFloat(order.Filled),
		AveragePrice:   derefFloat(order.Average),
		SubmittedAt:    time.Now().UTC(),
	}

	a.logger.Info("订单已提交",
		zap.String("asset", req.Asset),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("price", req.Price),
		zap.Bool("reduce_only", req.ReduceOnly),
		zap.String("order_id", result.OrderID),
		zap.String("status", result.Status),
	)

	return result, nil
}

// CancelOrder 撤销指定订单。
func (a *CCXTAdapter) CancelOrder(ctx context.Context, asset, orderID string) error {
	symbol, err := a.symbolFor(asset)
	if err != nil {
		return err
	}
	if orderID == "" {
		return fmt.Errorf("venue: 订单ID不能为空")
	}

	return call(ctx, a.logger, a.policy, a.name, "cancel_order", func() error {
		_, err := a.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(symbol))
		return err
	})
}

var _ Adapter = (*CCXTAdapter)(nil)
