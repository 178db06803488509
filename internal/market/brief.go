package market

import (
	"context"
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// candleSource 为简报依赖的行情数据来源。
type candleSource interface {
	FetchCandles(ctx context.Context, asset, timeframe string, limit int64) ([]Candle, error)
	FetchLastPrice(ctx context.Context, asset string) (float64, error)
}

// BriefService 聚合行情数据生成决策简报。
type BriefService struct {
	client candleSource
	logger *zap.Logger
}

// NewBriefService 创建简报服务。
func NewBriefService(client candleSource, logger *zap.Logger) *BriefService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BriefService{client: client, logger: logger}
}

const briefCandleLimit = 48

// Compose 并发拉取K线与最新价，计算 RSI/ATR 与24小时涨跌幅。
func (s *BriefService) Compose(ctx context.Context, asset string) (Brief, error) {
	var (
		candles []Candle
		price   float64
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, asset, "1h", briefCandleLimit)
		if err != nil {
			return err
		}
		candles = data
		return nil
	})

	group.Go(func() error {
		last, err := s.client.FetchLastPrice(groupCtx, asset)
		if err != nil {
			return err
		}
		price = last
		return nil
	})

	if err := group.Wait(); err != nil {
		return Brief{}, err
	}

	if len(candles) < 15 {
		return Brief{}, fmt.Errorf("market: K线数据不足以计算指标: %d", len(candles))
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	var volume24h float64
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		if i >= len(candles)-24 {
			volume24h += c.Volume
		}
	}

	rsi := talib.Rsi(closes, 14)
	atr := talib.Atr(highs, lows, closes, 14)

	brief := Brief{
		Asset:       asset,
		LastPrice:   price,
		RSI14:       last(rsi),
		ATR14:       last(atr),
		Volume24h:   volume24h,
		RetrievedAt: time.Now().UTC(),
	}

	if len(closes) >= 25 {
		base := closes[len(closes)-25]
		if base > 0 {
			brief.Change24hPct = (price - base) / base * 100
		}
	}

	s.logger.Debug("市场简报生成完成",
		zap.String("asset", asset),
		zap.Float64("last_price", brief.LastPrice),
		zap.Float64("rsi14", brief.RSI14),
		zap.Float64("change_24h_pct", brief.Change24hPct),
	)

	return brief, nil
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
