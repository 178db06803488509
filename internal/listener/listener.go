package listener

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/decision"
)

const (
	defaultPollInterval = 30 * time.Second
	httpTimeout         = 10 * time.Second
)

// Submitter 为信号入口能力，由协调器实现。
type Submitter interface {
	Submit(signal decision.Signal) bool
}

// Listener 为一路上币消息来源，Run 阻塞轮询直到 ctx 取消。
type Listener interface {
	Name() string
	Run(ctx context.Context) error
}

// Mapping 把公告文本中出现的名称映射为内部币种符号，构建后只读。
// 键为公告中的别名（如 MONAD），值为币种符号（如 MON）。
type Mapping struct {
	aliases   []string
	symbols   map[string]string
	supported map[string]struct{}
}

// NewMapping 构建映射表，别名按长度降序排列，避免短别名抢先命中。
func NewMapping(raw map[string]string) *Mapping {
	m := &Mapping{
		symbols:   make(map[string]string, len(raw)),
		supported: make(map[string]struct{}, len(raw)),
	}
	for alias, symbol := range raw {
		alias = strings.ToUpper(strings.TrimSpace(alias))
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if alias == "" || symbol == "" {
			continue
		}
		m.symbols[alias] = symbol
		m.supported[symbol] = struct{}{}
		m.aliases = append(m.aliases, alias)
	}
	sort.Slice(m.aliases, func(i, j int) bool {
		if len(m.aliases[i]) != len(m.aliases[j]) {
			return len(m.aliases[i]) > len(m.aliases[j])
		}
		return m.aliases[i] < m.aliases[j]
	})
	return m
}

// Extract 在文本中查找已知别名，返回对应币种符号。
func (m *Mapping) Extract(text string) (string, bool) {
	upper := strings.ToUpper(text)
	for _, alias := range m.aliases {
		if strings.Contains(upper, alias) {
			return m.symbols[alias], true
		}
	}
	return "", false
}

// Supported 判断币种是否在映射表的目标集合内。
func (m *Mapping) Supported(symbol string) bool {
	_, ok := m.supported[strings.ToUpper(symbol)]
	return ok
}

// Run 依次启动全部监听器，任一监听器退出不影响其余。
func Run(ctx context.Context, listeners []Listener, logger *zap.Logger) {
	for _, l := range listeners {
		go func(l Listener) {
			if err := l.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("监听器退出", zap.String("listener", l.Name()), zap.Error(err))
			}
		}(l)
	}
}

// pollLoop 立即执行一次轮询，之后按固定间隔重复，单次失败只记录日志。
func pollLoop(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, poll func(context.Context) error) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger.Info("监听器启动", zap.String("listener", name), zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("轮询失败", zap.String("listener", name), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}
