package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

type ohlcvClient interface {
	FetchOHLCV(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error)
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
}

// Client 拉取公共行情数据，不需要任何凭证。
type Client struct {
	exchange ohlcvClient
	markets  map[string]string
	policy   venue.RetryPolicy
	logger   *zap.Logger
}

// NewPublicClient 基于 Hyperliquid 公共接口构造行情客户端。
func NewPublicClient(markets map[string]string, policy venue.RetryPolicy, logger *zap.Logger) *Client {
	ex := ccxt.NewHyperliquid(map[string]interface{}{
		"enableRateLimit": true,
	})
	return newClient(ex, markets, policy, logger)
}

func newClient(exchange ohlcvClient, markets map[string]string, policy venue.RetryPolicy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	normalized := make(map[string]string, len(markets))
	for asset, symbol := range markets {
		normalized[strings.ToUpper(strings.TrimSpace(asset))] = symbol
	}
	return &Client{
		exchange: exchange,
		markets:  normalized,
		policy:   policy,
		logger:   logger,
	}
}

func (c *Client) symbolFor(asset string) (string, error) {
	symbol, ok := c.markets[strings.ToUpper(strings.TrimSpace(asset))]
	if !ok {
		return "", fmt.Errorf("market: 币种未配置交易对: %s", asset)
	}
	return symbol, nil
}

// FetchCandles 获取指定周期的K线数据。
func (c *Client) FetchCandles(ctx context.Context, asset, timeframe string, limit int64) ([]Candle, error) {
	symbol, err := c.symbolFor(asset)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err = c.withRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles, nil
}

// FetchLastPrice 获取最新成交价。
func (c *Client) FetchLastPrice(ctx context.Context, asset string) (float64, error) {
	symbol, err := c.symbolFor(asset)
	if err != nil {
		return 0, err
	}

	var price float64
	err = c.withRetry(ctx, "fetch_ticker", func() error {
		ticker, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}
		if ticker.Last != nil && *ticker.Last > 0 {
			price = *ticker.Last
		} else if ticker.Close != nil {
			price = *ticker.Close
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("market: 行情价格无效: %s", symbol)
	}
	return price, nil
}

func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	policy := c.policy
	if policy.MaxAttempts <= 0 {
		policy = venue.DefaultRetryPolicy()
	}

	delay := policy.MinDelay
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !venue.IsRetryable(err) || attempt >= policy.MaxAttempts {
			return fmt.Errorf("market: %s 调用失败: %w", operation, err)
		}

		c.logger.Warn("行情调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
