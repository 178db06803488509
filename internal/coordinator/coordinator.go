package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/decision"
	"github.com/fiamma-chain/AITradeNews/internal/executor"
)

// Unit 为协调器依赖的执行单元能力。
type Unit interface {
	Name() string
	Execute(ctx context.Context, signal decision.Signal) ([]executor.VenueResult, error)
}

// Reporter 为可选的执行报告落盘能力。
type Reporter interface {
	RecordReport(ctx context.Context, report Report) error
}

type multiReporter []Reporter

func (m multiReporter) RecordReport(ctx context.Context, report Report) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.RecordReport(ctx, report))
	}
	return err
}

// MultiReporter 把报告同时写入多个目的地，nil 目的地被忽略。
func MultiReporter(reporters ...Reporter) Reporter {
	out := make(multiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// AgentReport 为单个 Agent 对一次信号的汇总结果。
type AgentReport struct {
	Agent   string                 `json:"agent"`
	Results []executor.VenueResult `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

// Report 为一次信号的聚合执行报告。
type Report struct {
	SignalID    string        `json:"signal_id"`
	Source      string        `json:"source"`
	Asset       string        `json:"asset"`
	Headline    string        `json:"headline"`
	Accepted    bool          `json:"accepted"`
	DropReason  string        `json:"drop_reason,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Agents      []AgentReport `json:"agents,omitempty"`
}

// Coordinator 接收外部信号，做币种冷却去抖后并发分发给全部 Agent。
// 冷却只在分发前丢弃重复信号，绝不取消已在执行中的流程。
type Coordinator struct {
	agents          []Unit
	cooldown        time.Duration
	dispatchTimeout time.Duration
	journal         Reporter
	logger          *zap.Logger

	mu        sync.Mutex
	lastFired map[string]time.Time

	wg sync.WaitGroup
}

// New 创建协调器。journal 可为 nil。
func New(agents []Unit, cooldown, dispatchTimeout time.Duration, journal Reporter, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = 2 * time.Minute
	}
	return &Coordinator{
		agents:          agents,
		cooldown:        cooldown,
		dispatchTimeout: dispatchTimeout,
		journal:         journal,
		logger:          logger,
		lastFired:       make(map[string]time.Time),
	}
}

// NewUnits 把具体 Agent 列表转换为执行单元切片。
func NewUnits(agents []*executor.Agent) []Unit {
	units := make([]Unit, 0, len(agents))
	for _, agent := range agents {
		units = append(units, agent)
	}
	return units
}

// Submit 提交信号，立即返回是否被接受，执行异步进行。
func (c *Coordinator) Submit(signal decision.Signal) bool {
	if err := signal.Validate(); err != nil {
		c.logger.Warn("拒绝非法信号", zap.Error(err))
		return false
	}

	asset := strings.ToUpper(signal.Asset)
	now := time.Now().UTC()

	c.mu.Lock()
	last, seen := c.lastFired[asset]
	if seen && now.Sub(last) < c.cooldown {
		c.mu.Unlock()
		remaining := c.cooldown - now.Sub(last)
		c.logger.Info("信号处于冷却期，已丢弃",
			zap.String("signal_id", signal.ID),
			zap.String("asset", asset),
			zap.Duration("remaining", remaining),
		)
		c.record(Report{
			SignalID:    signal.ID,
			Source:      signal.Source,
			Asset:       asset,
			Headline:    signal.Headline,
			Accepted:    false,
			DropReason:  "冷却期内重复信号",
			SubmittedAt: now,
		})
		return false
	}
	c.lastFired[asset] = now
	c.mu.Unlock()

	c.logger.Info("信号已接受，开始分发",
		zap.String("signal_id", signal.ID),
		zap.String("source", signal.Source),
		zap.String("asset", asset),
		zap.Int("agents", len(c.agents)),
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatch(signal, now)
	}()
	return true
}

// Wait 等待全部在途信号执行完成，供退出时排空。
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) dispatch(signal decision.Signal, submittedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), c.dispatchTimeout)
	defer cancel()

	reports := make([]AgentReport, len(c.agents))
	var wg sync.WaitGroup

	for i, agent := range c.agents {
		wg.Add(1)
		go func(idx int, unit Unit) {
			defer wg.Done()

			results, err := unit.Execute(ctx, signal)
			report := AgentReport{Agent: unit.Name(), Results: results}
			if err != nil {
				report.Error = err.Error()
			}
			reports[idx] = report
		}(i, agent)
	}
	wg.Wait()

	report := Report{
		SignalID:    signal.ID,
		Source:      signal.Source,
		Asset:       signal.Asset,
		Headline:    signal.Headline,
		Accepted:    true,
		SubmittedAt: submittedAt,
		CompletedAt: time.Now().UTC(),
		Agents:      reports,
	}

	var succeeded, failed, skipped int
	for _, agentReport := range reports {
		for _, result := range agentReport.Results {
			switch result.Status {
			case executor.LegSuccess:
				succeeded++
			case executor.LegFailed:
				failed++
			case executor.LegSkipped:
				skipped++
			}
		}
	}

	c.logger.Info("信号分发完成",
		zap.String("signal_id", signal.ID),
		zap.String("asset", signal.Asset),
		zap.Int("legs_success", succeeded),
		zap.Int("legs_failed", failed),
		zap.Int("legs_skipped", skipped),
		zap.Duration("elapsed", report.CompletedAt.Sub(submittedAt)),
	)

	c.record(report)
}

func (c *Coordinator) record(report Report) {
	if c.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.journal.RecordReport(ctx, report); err != nil {
		c.logger.Warn("写入执行报告失败", zap.String("signal_id", report.SignalID), zap.Error(err))
	}
}
