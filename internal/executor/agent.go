package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/decision"
	"github.com/fiamma-chain/AITradeNews/internal/market"
	"github.com/fiamma-chain/AITradeNews/internal/position"
	"github.com/fiamma-chain/AITradeNews/internal/precision"
	"github.com/fiamma-chain/AITradeNews/internal/risk"
	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

// 残余仓位小于该值视为粉尘，不再追加平仓。
const dustThreshold = 1e-9

// briefComposer 为可选的市场简报来源。
type briefComposer interface {
	Compose(ctx context.Context, asset string) (market.Brief, error)
}

// dailyGuard 为可选的日度风控。
type dailyGuard interface {
	Check(ctx context.Context, agent string, equity float64) (risk.Status, error)
	RecordTrade(ctx context.Context, agent string) error
}

// Agent 为单个交易 Agent 的执行单元。
// 每个 Agent 持有自己的凭证与平台集合，彼此之间不共享任何可变状态。
type Agent struct {
	name       string
	oracle     decision.Oracle
	mapper     *decision.Mapper
	reconciler *position.Reconciler
	table      *precision.Table
	adapters   map[string]venue.Adapter
	guard      dailyGuard
	briefs     briefComposer
	cfg        config.TradingConfig
	logger     *zap.Logger
	keys       *keyedMutex
}

// NewAgent 创建执行单元。guard 与 briefs 可为 nil。
func NewAgent(
	name string,
	oracle decision.Oracle,
	mapper *decision.Mapper,
	reconciler *position.Reconciler,
	table *precision.Table,
	adapters map[string]venue.Adapter,
	guard dailyGuard,
	briefs briefComposer,
	cfg config.TradingConfig,
	logger *zap.Logger,
) (*Agent, error) {
	if name == "" {
		return nil, errors.New("executor: agent 名称不能为空")
	}
	if oracle == nil || mapper == nil || reconciler == nil || table == nil {
		return nil, errors.New("executor: 依赖不完整")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("executor: agent %s 没有可用平台", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		name:       name,
		oracle:     oracle,
		mapper:     mapper,
		reconciler: reconciler,
		table:      table,
		adapters:   adapters,
		guard:      guard,
		briefs:     briefs,
		cfg:        cfg,
		logger:     logger.With(zap.String("agent", name)),
		keys:       newKeyedMutex(),
	}, nil
}

// Name 返回 Agent 名称。
func (a *Agent) Name() string {
	return a.name
}

// Execute 对单个信号运行 决策→对账→归一化→下单 全流程。
// 各平台腿并发执行且互相隔离；部分失败时返回 *PartialFailure，结果仍完整上报。
func (a *Agent) Execute(ctx context.Context, signal decision.Signal) ([]VenueResult, error) {
	if err := signal.Validate(); err != nil {
		return nil, err
	}

	brief := a.composeBrief(ctx, signal.Asset)

	oracleCtx := ctx
	if a.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		oracleCtx, cancel = context.WithTimeout(ctx, a.cfg.OracleTimeout)
		defer cancel()
	}

	dec, err := a.oracle.GenerateDecision(oracleCtx, signal, brief)
	if err != nil {
		return nil, err
	}

	if dec.Direction == decision.DirectionNone || dec.Confidence < a.cfg.ConfidenceFloor {
		reason := "模型判定不交易"
		if dec.Direction != decision.DirectionNone {
			reason = fmt.Sprintf("信心度 %.1f 低于门槛 %.1f", dec.Confidence, a.cfg.ConfidenceFloor)
		}
		a.logger.Info("信号不满足交易条件",
			zap.String("signal_id", signal.ID),
			zap.String("asset", signal.Asset),
			zap.String("reason", reason),
		)
		return a.skipAll(signal.Asset, reason), nil
	}

	results := make([]VenueResult, 0, len(a.adapters))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for name, adapter := range a.adapters {
		wg.Add(1)
		go func(venueName string, adapter venue.Adapter) {
			defer wg.Done()
			result := a.executeLeg(ctx, venueName, adapter, signal, dec)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(name, adapter)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Venue < results[j].Venue })

	var succeeded, failed []string
	for _, r := range results {
		switch r.Status {
		case LegSuccess:
			succeeded = append(succeeded, r.Venue)
		case LegFailed:
			failed = append(failed, r.Venue)
		}
	}
	if len(failed) > 0 && len(succeeded) > 0 {
		return results, &PartialFailure{Agent: a.name, Succeeded: succeeded, Failed: failed}
	}
	return results, nil
}

func (a *Agent) composeBrief(ctx context.Context, asset string) *market.Brief {
	if a.briefs == nil {
		return nil
	}

	briefCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	brief, err := a.briefs.Compose(briefCtx, asset)
	if err != nil {
		// 简报仅用于丰富提示词，失败不阻断决策
		a.logger.Warn("市场简报生成失败", zap.String("asset", asset), zap.Error(err))
		return nil
	}
	return &brief
}

func (a *Agent) skipAll(asset, reason string) []VenueResult {
	results := make([]VenueResult, 0, len(a.adapters))
	for name := range a.adapters {
		results = append(results, VenueResult{
			Agent:  a.name,
			Venue:  name,
			Asset:  asset,
			Status: LegSkipped,
			Reason: reason,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Venue < results[j].Venue })
	return results
}

func (a *Agent) executeLeg(ctx context.Context, venueName string, adapter venue.Adapter, signal decision.Signal, dec decision.Decision) VenueResult {
	start := time.Now()
	result := VenueResult{
		Agent: a.name,
		Venue: venueName,
		Asset: signal.Asset,
	}
	fail := func(err error) VenueResult {
		result.Status = LegFailed
		result.Error = err.Error()
		result.Elapsed = time.Since(start)
		a.logger.Error("平台腿执行失败",
			zap.String("signal_id", signal.ID),
			zap.String("venue", venueName),
			zap.String("asset", signal.Asset),
			zap.Error(err),
		)
		return result
	}
	skip := func(reason string) VenueResult {
		result.Status = LegSkipped
		result.Reason = reason
		result.Elapsed = time.Since(start)
		return result
	}

	// 同一 (venue, asset) 键上的执行严格串行，避免两次先平后开交错
	unlock := a.keys.lock(venueName + ":" + signal.Asset)
	defer unlock()

	spec, err := a.table.Require(venueName, signal.Asset)
	if err != nil {
		return fail(err)
	}

	account, err := adapter.GetAccountInfo(ctx)
	if err != nil {
		return fail(err)
	}

	if a.guard != nil {
		status, err := a.guard.Check(ctx, a.name, account.TotalEquity)
		if err != nil {
			return fail(err)
		}
		if status.Halted {
			return skip("日度风控停交易: " + status.HaltReason)
		}
	}

	maxLeverage, err := adapter.GetMaxLeverage(ctx, signal.Asset)
	if err != nil {
		// 拿不到平台上限时退化为配置区间，不阻断执行
		a.logger.Warn("查询平台最大杠杆失败",
			zap.String("venue", venueName),
			zap.String("asset", signal.Asset),
			zap.Error(err),
		)
		maxLeverage = 0
	}

	intent, err := a.mapper.Map(signal.Asset, dec, maxLeverage)
	if err != nil {
		if errors.Is(err, decision.ErrNoTrade) || errors.Is(err, decision.ErrLowConfidence) {
			return skip(err.Error())
		}
		return fail(err)
	}
	result.Side = string(intent.Side)
	result.Leverage = intent.Leverage
	result.MarginPct = intent.MarginPct
	result.StopLossPct = intent.StopLossPct
	result.TakeProfitPct = intent.TakeProfitPct

	plan, err := a.reconciler.ReconcileOpen(ctx, adapter, a.name, signal.Asset, intent.Side)
	if err != nil {
		return fail(err)
	}
	result.Action = plan.Action

	if plan.Action == position.ActionNoop {
		return skip(plan.Reason)
	}

	markPrice, err := adapter.GetMarkPrice(ctx, signal.Asset)
	if err != nil {
		return fail(err)
	}

	if plan.Action == position.ActionCloseThenOpen {
		if err := a.closeLive(ctx, adapter, spec, signal, plan, markPrice); err != nil {
			// 平仓失败时绝不继续开仓，否则会双倍敞口
			return fail(err)
		}

		// 平仓释放保证金后重新读取余额，开仓规模以最新余额为准
		account, err = adapter.GetAccountInfo(ctx)
		if err != nil {
			return fail(err)
		}
	}

	quantity, guardPrice, err := a.sizeOpenOrder(spec, account, intent, markPrice)
	if err != nil {
		return fail(err)
	}
	result.Quantity = quantity
	result.Price = guardPrice

	leverage := int(math.Round(intent.Leverage))
	if err := adapter.SetLeverage(ctx, signal.Asset, leverage); err != nil {
		a.logger.Warn("推送杠杆失败，按平台当前杠杆继续",
			zap.String("venue", venueName),
			zap.String("asset", signal.Asset),
			zap.Int("leverage", leverage),
			zap.Error(err),
		)
	}

	order, err := adapter.PlaceOrder(ctx, venue.OrderRequest{
		Asset:         signal.Asset,
		Side:          intent.Side,
		Quantity:      quantity,
		Price:         guardPrice,
		Market:        true,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return fail(err)
	}

	signedSize := quantity
	if intent.Side == venue.SideSell {
		signedSize = -quantity
	}
	a.reconciler.Commit(ctx, position.Snapshot{
		Agent:      a.name,
		Venue:      venueName,
		Asset:      signal.Asset,
		Size:       signedSize,
		EntryPrice: markPrice,
		Leverage:   intent.Leverage,
		UpdatedAt:  time.Now().UTC(),
	})

	if a.guard != nil {
		if err := a.guard.RecordTrade(ctx, a.name); err != nil {
			a.logger.Warn("累计交易次数失败", zap.Error(err))
		}
	}

	result.Status = LegSuccess
	result.OrderID = order.OrderID
	result.Elapsed = time.Since(start)

	a.logger.Info("平台腿执行成功",
		zap.String("signal_id", signal.ID),
		zap.String("venue", venueName),
		zap.String("asset", signal.Asset),
		zap.String("action", string(plan.Action)),
		zap.String("side", string(intent.Side)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", guardPrice),
		zap.String("order_id", order.OrderID),
	)
	return result
}

// closeLive 以 reduce-only 订单平掉平台实时仓位，并确认仓位确已消失。
func (a *Agent) closeLive(ctx context.Context, adapter venue.Adapter, spec precision.Spec, signal decision.Signal, plan position.Plan, markPrice float64) error {
	closeQty := spec.NormalizeQuantity(plan.CloseQuantity, precision.RoundHalfUp)
	if closeQty <= dustThreshold {
		return nil
	}

	_, err := adapter.PlaceOrder(ctx, venue.OrderRequest{
		Asset:         signal.Asset,
		Side:          plan.CloseSide,
		Quantity:      closeQty,
		Price:         spec.GuardPrice(markPrice, plan.CloseSide, a.cfg.Slippage),
		Market:        true,
		ReduceOnly:    true,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("平仓失败: %w", err)
	}

	// 开仓前再次实时确认旧仓位已消失
	live, err := adapter.GetPosition(ctx, signal.Asset)
	if err != nil {
		return fmt.Errorf("平仓后查询仓位失败: %w", err)
	}
	if live != nil && math.Abs(live.Size) > dustThreshold {
		return fmt.Errorf("平仓后平台仍有仓位 %.8f，放弃开仓", live.Size)
	}

	a.reconciler.Commit(ctx, position.Snapshot{
		Agent: a.name,
		Venue: adapter.Name(),
		Asset: signal.Asset,
		Size:  0,
	})
	return nil
}

// sizeOpenOrder 根据余额与意图计算开仓数量与护栏价并做精度校验。
func (a *Agent) sizeOpenOrder(spec precision.Spec, account venue.AccountInfo, intent decision.Intent, markPrice float64) (float64, float64, error) {
	if markPrice <= 0 {
		return 0, 0, fmt.Errorf("executor: 标记价格无效: %f", markPrice)
	}
	if account.AvailableBalance <= 0 {
		return 0, 0, fmt.Errorf("executor: 可用余额不足: %f", account.AvailableBalance)
	}

	margin := account.AvailableBalance * intent.MarginPct
	notional := margin * intent.Leverage
	rawQuantity := notional / markPrice

	quantity := spec.NormalizeQuantity(rawQuantity, precision.RoundDown)
	guardPrice := spec.GuardPrice(markPrice, intent.Side, a.cfg.Slippage)

	if err := spec.Validate(quantity, markPrice); err != nil {
		return 0, 0, err
	}
	return quantity, guardPrice, nil
}
