package executor

import (
	"time"

	"github.com/fiamma-chain/AITradeNews/internal/position"
)

// LegStatus 为单个平台腿的终态。
type LegStatus string

const (
	LegSuccess LegStatus = "success"
	LegSkipped LegStatus = "skipped"
	LegFailed  LegStatus = "failed"
)

// VenueResult 为一次信号在单个平台上的执行结果。
// 各腿结果互相独立，跨平台不做回滚。
type VenueResult struct {
	Agent     string          `json:"agent"`
	Venue     string          `json:"venue"`
	Asset     string          `json:"asset"`
	Status    LegStatus       `json:"status"`
	Action    position.Action `json:"action,omitempty"`
	Side      string          `json:"side,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	Quantity  float64         `json:"quantity,omitempty"`
	Price     float64         `json:"price,omitempty"`
	Leverage  float64         `json:"leverage,omitempty"`
	MarginPct float64         `json:"margin_pct,omitempty"`

	// 外部监控的参考止损/止盈边界，引擎不挂保护单。
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`

	Reason  string        `json:"reason,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}
