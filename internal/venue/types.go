package venue

import (
	"context"
	"time"
)

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// AccountInfo 描述账户权益与可用余额。
type AccountInfo struct {
	TotalEquity      float64
	AvailableBalance float64
	Timestamp        time.Time
}

// Position 为平台实时上报的仓位，Size 带符号（正为多头）。
// 仅作为每次对账的实时输入，绝不作为权威状态持久化。
type Position struct {
	Venue         string
	Asset         string
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	Leverage      float64
	UnrealizedPnl float64
	Timestamp     time.Time
}

// OrderRequest 为统一的下单请求。
// Market 为真时 Price 作为保护性护栏价，防止无限滑点成交。
type OrderRequest struct {
	Asset         string
	Side          Side
	Quantity      float64
	Price         float64
	Market        bool
	ReduceOnly    bool
	ClientOrderID string
}

// OrderResult 为下单结果摘要。
type OrderResult struct {
	OrderID        string
	Status         string
	FilledQuantity float64
	AveragePrice   float64
	SubmittedAt    time.Time
}

// Adapter 为执行平台的统一契约，每个平台实现一次。
// 所有实现必须支持并发调用，且自行处理平台侧限频。
type Adapter interface {
	Name() string
	GetAccountInfo(ctx context.Context) (AccountInfo, error)
	GetPosition(ctx context.Context, asset string) (*Position, error)
	GetMarkPrice(ctx context.Context, asset string) (float64, error)
	GetMaxLeverage(ctx context.Context, asset string) (float64, error)
	SetLeverage(ctx context.Context, asset string, leverage int) error
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, asset, orderID string) error
}
