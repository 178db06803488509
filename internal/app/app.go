package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/coordinator"
	"github.com/fiamma-chain/AITradeNews/internal/decision"
	"github.com/fiamma-chain/AITradeNews/internal/executor"
	"github.com/fiamma-chain/AITradeNews/internal/journal"
	"github.com/fiamma-chain/AITradeNews/internal/listener"
	"github.com/fiamma-chain/AITradeNews/internal/market"
	"github.com/fiamma-chain/AITradeNews/internal/monitor"
	"github.com/fiamma-chain/AITradeNews/internal/position"
	"github.com/fiamma-chain/AITradeNews/internal/precision"
	"github.com/fiamma-chain/AITradeNews/internal/risk"
	"github.com/fiamma-chain/AITradeNews/internal/store"
	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store

	coordinator *coordinator.Coordinator
	listeners   []listener.Listener
	monitor     *monitor.Server
	redis       *position.RedisCache
}

// New 按配置装配全部组件。
func New(cfg *config.Config, logger *zap.Logger, sqliteStore *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	journalSvc, err := journal.NewService(sqliteStore, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化报告存储失败: %w", err)
	}

	guard, err := risk.NewGuard(sqliteStore.DB(), cfg.Trading, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化风险护栏失败: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		store:  sqliteStore,
	}

	cache, err := a.newPositionCache()
	if err != nil {
		return nil, err
	}

	table := precision.NewTable(cfg.Precision)
	policy := venue.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		MinDelay:    cfg.Retry.MinDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	marketClient := market.NewPublicClient(cfg.Venues.Hyperliquid.Markets, policy, logger)
	briefs := market.NewBriefService(marketClient, logger)
	mapper := decision.NewMapper(cfg.Trading)

	agents, err := a.buildAgents(cache, table, policy, mapper, guard, briefs)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, errors.New("没有任何 Agent 装配成功")
	}

	var hub *monitor.Hub
	reporter := coordinator.Reporter(journalSvc)
	if cfg.Monitor.Enabled {
		hub = monitor.NewHub(logger)
		reporter = coordinator.MultiReporter(journalSvc, hub)
	}

	a.coordinator = coordinator.New(
		coordinator.NewUnits(agents),
		cfg.Trading.Cooldown,
		cfg.Trading.DispatchTimeout,
		reporter,
		logger,
	)

	a.listeners = a.buildListeners()
	a.monitor = monitor.NewServer(cfg.Monitor, a.coordinator, journalSvc, hub, logger)

	return a, nil
}

// Run 启动监听与监控接口，阻塞到退出信号，退出前排空在途信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易执行引擎已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("listeners", len(a.listeners)),
	)

	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("启动监控接口失败: %w", err)
	}
	listener.Run(ctx, a.listeners, a.logger)

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，等待在途信号完成")
	a.coordinator.Wait()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("关闭 Redis 连接失败", zap.Error(err))
		}
	}
	return nil
}

// Submit 暴露信号入口，便于测试与嵌入使用。
func (a *App) Submit(signal decision.Signal) bool {
	return a.coordinator.Submit(signal)
}

func (a *App) newPositionCache() (position.Cache, error) {
	if !a.cfg.Redis.Enabled {
		return position.NewMemoryCache(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisCache, err := position.NewRedisCache(ctx, a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	a.redis = redisCache
	a.logger.Info("持仓镜像缓存使用 Redis", zap.String("addr", a.cfg.Redis.Addr))
	return redisCache, nil
}

func (a *App) buildAgents(
	cache position.Cache,
	table *precision.Table,
	policy venue.RetryPolicy,
	mapper *decision.Mapper,
	guard *risk.Guard,
	briefs *market.BriefService,
) ([]*executor.Agent, error) {
	agents := make([]*executor.Agent, 0, len(a.cfg.Agents))

	for _, agentCfg := range a.cfg.Agents {
		oracle, err := decision.NewOpenAIOracle(a.cfg.OpenAI, agentCfg.Model, a.logger)
		if err != nil {
			return nil, fmt.Errorf("agent %s: 初始化决策模型失败: %w", agentCfg.Name, err)
		}

		adapters := a.buildAdapters(agentCfg, policy)
		if len(adapters) == 0 {
			a.logger.Warn("Agent 没有任何可用平台，已跳过", zap.String("agent", agentCfg.Name))
			continue
		}

		reconciler := position.NewReconciler(cache, a.cfg.Trading.SameDirectionPolicy, a.logger)

		agent, err := executor.NewAgent(
			agentCfg.Name,
			oracle,
			mapper,
			reconciler,
			table,
			adapters,
			guard,
			briefs,
			a.cfg.Trading,
			a.logger,
		)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", agentCfg.Name, err)
		}

		a.logger.Info("Agent 装配完成",
			zap.String("agent", agentCfg.Name),
			zap.Int("venues", len(adapters)),
		)
		agents = append(agents, agent)
	}
	return agents, nil
}

func (a *App) buildAdapters(agentCfg config.AgentConfig, policy venue.RetryPolicy) map[string]venue.Adapter {
	adapters := make(map[string]venue.Adapter, len(agentCfg.Venues))

	for _, venueName := range agentCfg.Venues {
		creds := agentCfg.Credentials[venueName]

		var (
			adapter venue.Adapter
			err     error
		)
		switch venueName {
		case "hyperliquid":
			if !a.cfg.Venues.Hyperliquid.Enabled {
				continue
			}
			adapter, err = venue.NewHyperliquid(a.cfg.Venues.Hyperliquid, creds, policy, a.logger)
		case "aster":
			if !a.cfg.Venues.Aster.Enabled {
				continue
			}
			adapter, err = venue.NewAster(a.cfg.Venues.Aster, creds, policy, a.logger)
		default:
			a.logger.Warn("未知平台，已忽略",
				zap.String("agent", agentCfg.Name),
				zap.String("venue", venueName),
			)
			continue
		}

		if err != nil {
			a.logger.Warn("平台适配器初始化失败，已跳过",
				zap.String("agent", agentCfg.Name),
				zap.String("venue", venueName),
				zap.Error(err),
			)
			continue
		}
		adapters[venueName] = adapter
	}
	return adapters
}

func (a *App) buildListeners() []listener.Listener {
	mapping := listener.NewMapping(a.cfg.Listeners.CoinMapping)
	listeners := make([]listener.Listener, 0, 2)

	if a.cfg.Listeners.Binance.Enabled {
		listeners = append(listeners,
			listener.NewBinance(a.cfg.Listeners.Binance, mapping, a.coordinator, a.logger))
	}
	if a.cfg.Listeners.Upbit.Enabled {
		listeners = append(listeners,
			listener.NewUpbit(a.cfg.Listeners.Upbit, mapping, a.coordinator, a.logger))
	}
	return listeners
}
