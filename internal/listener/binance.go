package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/decision"
)

const (
	defaultBinanceURL = "https://fapi.binance.com/fapi/v1/exchangeInfo"
	binancePairSuffix = "USDT"
)

// BinanceListener 轮询币安合约交易对列表，发现新增的 USDT 永续对即视为上币信号。
// 首轮只建立基线，避免把存量交易对当作新上线。
type BinanceListener struct {
	url       string
	interval  time.Duration
	client    *http.Client
	mapping   *Mapping
	submitter Submitter
	logger    *zap.Logger

	mu       sync.Mutex
	seen     map[string]struct{}
	baseline bool
}

// NewBinance 创建币安上币监听器。
func NewBinance(cfg config.ListenerConfig, mapping *Mapping, submitter Submitter, logger *zap.Logger) *BinanceListener {
	url := cfg.URL
	if url == "" {
		url = defaultBinanceURL
	}
	return &BinanceListener{
		url:       url,
		interval:  cfg.PollInterval,
		client:    newHTTPClient(),
		mapping:   mapping,
		submitter: submitter,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
}

func (l *BinanceListener) Name() string { return "binance_listing" }

// Run 阻塞轮询直到 ctx 取消。
func (l *BinanceListener) Run(ctx context.Context) error {
	return pollLoop(ctx, l.logger, l.Name(), l.interval, l.poll)
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol    string `json:"symbol"`
		Status    string `json:"status"`
		BaseAsset string `json:"baseAsset"`
	} `json:"symbols"`
}

func (l *BinanceListener) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("请求交易对列表失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("交易对接口返回状态码 %d", resp.StatusCode)
	}

	var info binanceExchangeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("解析交易对列表失败: %w", err)
	}

	active := make(map[string]string, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !strings.HasSuffix(s.Symbol, binancePairSuffix) {
			continue
		}
		base := s.BaseAsset
		if base == "" {
			base = strings.TrimSuffix(s.Symbol, binancePairSuffix)
		}
		active[s.Symbol] = strings.ToUpper(base)
	}

	l.mu.Lock()
	if !l.baseline {
		for symbol := range active {
			l.seen[symbol] = struct{}{}
		}
		l.baseline = true
		l.mu.Unlock()
		l.logger.Info("基线建立完成",
			zap.String("listener", l.Name()),
			zap.Int("pairs", len(active)),
		)
		return nil
	}

	fresh := make(map[string]string)
	for symbol, base := range active {
		if _, ok := l.seen[symbol]; !ok {
			l.seen[symbol] = struct{}{}
			fresh[symbol] = base
		}
	}
	l.mu.Unlock()

	for symbol, base := range fresh {
		if !l.mapping.Supported(base) {
			l.logger.Debug("新交易对不在监控列表",
				zap.String("listener", l.Name()),
				zap.String("symbol", symbol),
			)
			continue
		}

		headline := fmt.Sprintf("Binance Listed %s/%s", base, binancePairSuffix)
		body := fmt.Sprintf("New trading pair detected: %s (https://www.binance.com/en/trade/%s_%s)",
			symbol, base, binancePairSuffix)
		signal := decision.NewSignal(l.Name(), base, headline, body)

		l.logger.Info("发现监控币种上币",
			zap.String("listener", l.Name()),
			zap.String("asset", base),
			zap.String("symbol", symbol),
		)
		l.submitter.Submit(signal)
	}
	return nil
}
