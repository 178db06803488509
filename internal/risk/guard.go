package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
)

// Status 为某 Agent 当日的风控状态。
type Status struct {
	Agent         string
	TradingDate   string
	StartEquity   float64
	CurrentEquity float64
	LossPercent   float64
	Trades        int
	Halted        bool
	HaltReason    string
}

// Guard 维护每个 Agent 的日度亏损与交易次数限制。
// 一旦触发停交易，当日内不再放行任何新信号。
type Guard struct {
	db             *sql.DB
	maxDailyLoss   float64
	maxDailyTrades int
	logger         *zap.Logger
}

// NewGuard 创建日度风控并初始化表结构。
func NewGuard(db *sql.DB, cfg config.TradingConfig, logger *zap.Logger) (*Guard, error) {
	if db == nil {
		return nil, errors.New("risk: 数据库实例不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	guard := &Guard{
		db:             db,
		maxDailyLoss:   cfg.MaxDailyLoss,
		maxDailyTrades: cfg.MaxDailyTrades,
		logger:         logger,
	}

	if err := guard.initSchema(); err != nil {
		return nil, err
	}
	return guard, nil
}

func (g *Guard) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS risk_daily_guard (
			agent TEXT NOT NULL,
			trading_date TEXT NOT NULL,
			start_equity REAL NOT NULL,
			current_equity REAL NOT NULL,
			trades INTEGER NOT NULL DEFAULT 0,
			halted INTEGER NOT NULL DEFAULT 0,
			halt_reason TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (agent, trading_date)
		);`,
	}

	for _, stmt := range schema {
		if _, err := g.db.Exec(stmt); err != nil {
			return fmt.Errorf("risk: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

// Check 以最新净值更新当日状态并返回是否放行。
func (g *Guard) Check(ctx context.Context, agent string, equity float64) (Status, error) {
	var result Status

	tradingDate := tradingDay(time.Now().UTC())
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("risk: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		startEquity float64
		trades      int
		haltedInt   int
		haltReason  string
	)

	row := tx.QueryRowContext(ctx,
		`SELECT start_equity, trades, halted, halt_reason FROM risk_daily_guard WHERE agent = ? AND trading_date = ?`,
		agent, tradingDate,
	)
	switch scanErr := row.Scan(&startEquity, &trades, &haltedInt, &haltReason); {
	case scanErr == nil:
		if _, execErr := tx.ExecContext(ctx,
			`UPDATE risk_daily_guard SET current_equity = ?, updated_at = ? WHERE agent = ? AND trading_date = ?`,
			equity, now, agent, tradingDate,
		); execErr != nil {
			err = fmt.Errorf("risk: 更新日度净值失败: %w", execErr)
			return result, err
		}
	case errors.Is(scanErr, sql.ErrNoRows):
		if _, execErr := tx.ExecContext(ctx,
			`INSERT INTO risk_daily_guard (agent, trading_date, start_equity, current_equity, trades, halted, halt_reason, updated_at)
			 VALUES (?, ?, ?, ?, 0, 0, '', ?)`,
			agent, tradingDate, equity, equity, now,
		); execErr != nil {
			err = fmt.Errorf("risk: 初始化日度净值失败: %w", execErr)
			return result, err
		}

		result = Status{
			Agent:         agent,
			TradingDate:   tradingDate,
			StartEquity:   equity,
			CurrentEquity: equity,
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return result, fmt.Errorf("risk: 提交事务失败: %w", commitErr)
		}
		return result, nil
	default:
		err = fmt.Errorf("risk: 查询日度净值失败: %w", scanErr)
		return result, err
	}

	lossPercent := 0.0
	if startEquity > 0 {
		lossPercent = (equity - startEquity) / startEquity
	}
	halted := haltedInt == 1

	if !halted && g.maxDailyLoss > 0 && startEquity > 0 && lossPercent <= -g.maxDailyLoss {
		halted = true
		haltReason = fmt.Sprintf("当日累计亏损%.2f%% 超过上限 %.2f%%", -lossPercent*100, g.maxDailyLoss*100)
	}
	if !halted && g.maxDailyTrades > 0 && trades >= g.maxDailyTrades {
		halted = true
		haltReason = fmt.Sprintf("当日交易次数 %d 达到上限 %d", trades, g.maxDailyTrades)
	}

	if halted && haltedInt == 0 {
		if _, execErr := tx.ExecContext(ctx,
			`UPDATE risk_daily_guard SET halted = 1, halt_reason = ?, updated_at = ? WHERE agent = ? AND trading_date = ?`,
			haltReason, now, agent, tradingDate,
		); execErr != nil {
			err = fmt.Errorf("risk: 更新停交易状态失败: %w", execErr)
			return result, err
		}
		g.logger.Warn("触发日度风控停交易",
			zap.String("agent", agent),
			zap.String("trading_date", tradingDate),
			zap.String("reason", haltReason),
		)
	}

	result = Status{
		Agent:         agent,
		TradingDate:   tradingDate,
		StartEquity:   startEquity,
		CurrentEquity: equity,
		LossPercent:   lossPercent,
		Trades:        trades,
		Halted:        halted,
		HaltReason:    haltReason,
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return result, fmt.Errorf("risk: 提交事务失败: %w", commitErr)
	}
	return result, nil
}

// RecordTrade 在订单确认后累计当日交易次数。
func (g *Guard) RecordTrade(ctx context.Context, agent string) error {
	tradingDate := tradingDay(time.Now().UTC())
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := g.db.ExecContext(ctx,
		`UPDATE risk_daily_guard SET trades = trades + 1, updated_at = ? WHERE agent = ? AND trading_date = ?`,
		now, agent, tradingDate,
	)
	if err != nil {
		return fmt.Errorf("risk: 累计交易次数失败: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		_, err = g.db.ExecContext(ctx,
			`INSERT INTO risk_daily_guard (agent, trading_date, start_equity, current_equity, trades, halted, halt_reason, updated_at)
			 VALUES (?, ?, 0, 0, 1, 0, '', ?)`,
			agent, tradingDate, now,
		)
		if err != nil {
			return fmt.Errorf("risk: 初始化交易计数失败: %w", err)
		}
	}
	return nil
}

func tradingDay(ts time.Time) string {
	utc := ts.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
