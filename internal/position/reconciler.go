package position

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

// Action 为对账得出的执行动作。
type Action string

const (
	ActionNoop          Action = "noop"
	ActionOpenOnly      Action = "open_only"
	ActionCloseThenOpen Action = "close_then_open"
	ActionCloseOnly     Action = "close_only"
)

// Plan 为一次对账的输出。
// CloseQuantity 始终取自平台实时仓位的绝对值，绝不取自本地缓存。
type Plan struct {
	Action        Action
	Live          *venue.Position
	CloseQuantity float64
	CloseSide     venue.Side
	Reason        string
}

// positionSource 为对账依赖的平台查询能力。
type positionSource interface {
	Name() string
	GetPosition(ctx context.Context, asset string) (*venue.Position, error)
}

// Reconciler 在每次执行前把本地镜像与平台实时仓位对齐。
// 本地缓存只用于日志提示，分支判断永远以实时查询为准。
type Reconciler struct {
	cache               Cache
	logger              *zap.Logger
	sameDirectionPolicy string
}

// NewReconciler 创建对账器。policy 取值 hold 或 replace。
func NewReconciler(cache Cache, sameDirectionPolicy string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Reconciler{
		cache:               cache,
		logger:              logger,
		sameDirectionPolicy: strings.ToLower(strings.TrimSpace(sameDirectionPolicy)),
	}
}

// ReconcileOpen 针对开仓意图生成动作计划。
func (r *Reconciler) ReconcileOpen(ctx context.Context, source positionSource, agent, asset string, desired venue.Side) (Plan, error) {
	live, err := source.GetPosition(ctx, asset)
	if err != nil {
		return Plan{}, err
	}

	r.correctCache(ctx, agent, source.Name(), asset, live)

	if live == nil {
		return Plan{Action: ActionOpenOnly, Reason: "平台无仓位"}, nil
	}

	liveSide := sideOf(live.Size)
	if liveSide == desired {
		if r.sameDirectionPolicy == "replace" {
			return Plan{
				Action:        ActionCloseThenOpen,
				Live:          live,
				CloseQuantity: math.Abs(live.Size),
				CloseSide:     liveSide.Opposite(),
				Reason:        "同向仓位按替换策略先平后开",
			}, nil
		}
		return Plan{Action: ActionNoop, Live: live, Reason: "已持有同向仓位"}, nil
	}

	return Plan{
		Action:        ActionCloseThenOpen,
		Live:          live,
		CloseQuantity: math.Abs(live.Size),
		CloseSide:     liveSide.Opposite(),
		Reason:        "持有反向仓位，先平后开",
	}, nil
}

// ReconcileClose 针对显式平仓请求生成动作计划。
// 平台无仓位时返回 Noop，平仓请求天然幂等。
func (r *Reconciler) ReconcileClose(ctx context.Context, source positionSource, agent, asset string) (Plan, error) {
	live, err := source.GetPosition(ctx, asset)
	if err != nil {
		return Plan{}, err
	}

	r.correctCache(ctx, agent, source.Name(), asset, live)

	if live == nil {
		return Plan{Action: ActionNoop, Reason: "平台无仓位，无需平仓"}, nil
	}

	return Plan{
		Action:        ActionCloseOnly,
		Live:          live,
		CloseQuantity: math.Abs(live.Size),
		CloseSide:     sideOf(live.Size).Opposite(),
		Reason:        "按平台实时仓位平仓",
	}, nil
}

// Commit 在订单确认后更新本地镜像。
func (r *Reconciler) Commit(ctx context.Context, snapshot Snapshot) {
	if snapshot.Size == 0 {
		if err := r.cache.Delete(ctx, snapshot.Agent, snapshot.Venue, snapshot.Asset); err != nil {
			r.logger.Warn("删除仓位镜像失败", zap.Error(err))
		}
		return
	}
	if err := r.cache.Put(ctx, snapshot); err != nil {
		r.logger.Warn("写入仓位镜像失败", zap.Error(err))
	}
}

// correctCache 对比镜像与平台实况，不一致时静默以平台为准修正并记录诊断日志。
func (r *Reconciler) correctCache(ctx context.Context, agent, venueName, asset string, live *venue.Position) {
	cached, err := r.cache.Get(ctx, agent, venueName, asset)
	if err != nil {
		r.logger.Warn("读取仓位镜像失败", zap.Error(err))
		return
	}

	liveSize := 0.0
	if live != nil {
		liveSize = live.Size
	}
	cachedSize := 0.0
	if cached != nil {
		cachedSize = cached.Size
	}

	if math.Abs(liveSize-cachedSize) < 1e-9 {
		return
	}

	r.logger.Warn("本地仓位镜像与平台实况不一致，已按平台为准修正",
		zap.String("agent", agent),
		zap.String("venue", venueName),
		zap.String("asset", asset),
		zap.Float64("cached_size", cachedSize),
		zap.Float64("live_size", liveSize),
	)

	if live == nil {
		if err := r.cache.Delete(ctx, agent, venueName, asset); err != nil {
			r.logger.Warn("删除失效仓位镜像失败", zap.Error(err))
		}
		return
	}

	r.Commit(ctx, Snapshot{
		Agent:      agent,
		Venue:      venueName,
		Asset:      asset,
		Size:       live.Size,
		EntryPrice: live.EntryPrice,
		Leverage:   live.Leverage,
		UpdatedAt:  live.Timestamp,
	})
}

func sideOf(size float64) venue.Side {
	if size > 0 {
		return venue.SideBuy
	}
	return venue.SideSell
}
