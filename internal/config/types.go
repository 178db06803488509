package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了执行引擎运行所需的全部配置项。
type Config struct {
	App       AppConfig                           `mapstructure:"app"`
	Logging   LoggingConfig                       `mapstructure:"logging"`
	Database  DatabaseConfig                      `mapstructure:"database"`
	OpenAI    OpenAIConfig                        `mapstructure:"openai"`
	Trading   TradingConfig                       `mapstructure:"trading"`
	Retry     RetryConfig                         `mapstructure:"retry"`
	Venues    VenuesConfig                        `mapstructure:"venues"`
	Agents    []AgentConfig                       `mapstructure:"agents"`
	Redis     RedisConfig                         `mapstructure:"redis"`
	Listeners ListenersConfig                     `mapstructure:"listeners"`
	Monitor   MonitorConfig                       `mapstructure:"monitor"`
	Precision map[string]map[string]PrecisionSpec `mapstructure:"precision"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// DatabaseConfig 管理 SQLite 连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// OpenAIConfig 描述决策模型调用参数，Model 可被各 Agent 覆盖。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TradingConfig 控制决策到订单经济参数的映射与调度行为。
type TradingConfig struct {
	ConfidenceFloor     float64       `mapstructure:"confidence_floor"`
	MinLeverage         float64       `mapstructure:"min_leverage"`
	MaxLeverage         float64       `mapstructure:"max_leverage"`
	MinMarginPct        float64       `mapstructure:"min_margin_pct"`
	MaxMarginPct        float64       `mapstructure:"max_margin_pct"`
	StopLossPct         float64       `mapstructure:"stop_loss_pct"`
	TakeProfitPct       float64       `mapstructure:"take_profit_pct"`
	Slippage            float64       `mapstructure:"slippage"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
	SameDirectionPolicy string        `mapstructure:"same_direction_policy"`
	OracleTimeout       time.Duration `mapstructure:"oracle_timeout"`
	DispatchTimeout     time.Duration `mapstructure:"dispatch_timeout"`
	MaxDailyLoss        float64       `mapstructure:"max_daily_loss"`
	MaxDailyTrades      int           `mapstructure:"max_daily_trades"`
}

// RetryConfig 统一控制平台调用的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// VenueConfig 描述单个执行平台。
type VenueConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	UseSandbox bool              `mapstructure:"use_sandbox"`
	Markets    map[string]string `mapstructure:"markets"`
}

// VenuesConfig 汇总全部支持的执行平台。
type VenuesConfig struct {
	Hyperliquid VenueConfig `mapstructure:"hyperliquid"`
	Aster       VenueConfig `mapstructure:"aster"`
}

// VenueCredentials 为单个 Agent 在某平台上的凭证。
type VenueCredentials struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Wallet     string `mapstructure:"wallet_address"`
	PrivateKey string `mapstructure:"private_key"`
}

// AgentConfig 描述单个独立交易 Agent。
type AgentConfig struct {
	Name        string                      `mapstructure:"name"`
	Model       string                      `mapstructure:"model"`
	Venues      []string                    `mapstructure:"venues"`
	Credentials map[string]VenueCredentials `mapstructure:"credentials"`
}

// RedisConfig 控制可选的持仓镜像缓存。
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ListenerConfig 描述单个上币消息监听器，URL 为空时使用内置默认端点。
type ListenerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ListenersConfig 汇总上币消息监听器及币种映射表。
// CoinMapping 把公告文本中出现的名称映射为内部币种符号。
type ListenersConfig struct {
	Binance     ListenerConfig    `mapstructure:"binance"`
	Upbit       ListenerConfig    `mapstructure:"upbit"`
	CoinMapping map[string]string `mapstructure:"coin_mapping"`
}

// MonitorConfig 控制监控 HTTP 接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PrecisionSpec 为 (平台, 币种) 的精度约束，加载后只读。
type PrecisionSpec struct {
	QuantityStep float64 `mapstructure:"quantity_step"`
	PriceStep    float64 `mapstructure:"price_step"`
	MinQuantity  float64 `mapstructure:"min_quantity"`
	MinNotional  float64 `mapstructure:"min_notional"`
}

// KnownVenues 为当前支持的平台名称。
var KnownVenues = []string{"hyperliquid", "aster"}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}

	if c.Trading.ConfidenceFloor < 0 || c.Trading.ConfidenceFloor >= 100 {
		err = multierr.Append(err, errors.New("trading.confidence_floor 必须位于[0,100)"))
	}
	if c.Trading.MinLeverage < 1 || c.Trading.MaxLeverage < c.Trading.MinLeverage {
		err = multierr.Append(err, errors.New("trading.leverage 区间非法"))
	}
	if c.Trading.MinMarginPct <= 0 || c.Trading.MinMarginPct > 1 {
		err = multierr.Append(err, errors.New("trading.min_margin_pct 必须位于(0,1]"))
	}
	if c.Trading.MaxMarginPct < c.Trading.MinMarginPct || c.Trading.MaxMarginPct > 1 {
		err = multierr.Append(err, errors.New("trading.max_margin_pct 必须位于[min_margin_pct,1]"))
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		err = multierr.Append(err, errors.New("trading.stop_loss_pct 必须位于(0,1)"))
	}
	if c.Trading.TakeProfitPct <= 0 {
		err = multierr.Append(err, errors.New("trading.take_profit_pct 必须大于0"))
	}
	if c.Trading.Slippage < 0 || c.Trading.Slippage > 0.2 {
		err = multierr.Append(err, errors.New("trading.slippage 应位于[0,0.2]"))
	}
	if c.Trading.Cooldown <= 0 {
		err = multierr.Append(err, errors.New("trading.cooldown 必须大于0"))
	}
	switch strings.ToLower(c.Trading.SameDirectionPolicy) {
	case "hold", "replace":
	default:
		err = multierr.Append(err, fmt.Errorf("trading.same_direction_policy 取值非法: %s", c.Trading.SameDirectionPolicy))
	}
	if c.Trading.OracleTimeout <= 0 {
		err = multierr.Append(err, errors.New("trading.oracle_timeout 必须大于0"))
	}
	if c.Trading.DispatchTimeout <= 0 {
		err = multierr.Append(err, errors.New("trading.dispatch_timeout 必须大于0"))
	}

	if c.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("retry.max_attempts 必须大于0"))
	}
	if c.Retry.MinDelay <= 0 || c.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("retry.delay 必须为正"))
	}
	if c.Retry.MinDelay > c.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("retry.min_delay 不能大于 max_delay"))
	}

	if len(c.Agents) == 0 {
		err = multierr.Append(err, errors.New("agents 至少配置一个"))
	}

	seen := make(map[string]struct{}, len(c.Agents))
	for i, agent := range c.Agents {
		if agent.Name == "" {
			err = multierr.Append(err, fmt.Errorf("agents[%d].name 不能为空", i))
			continue
		}
		if _, dup := seen[agent.Name]; dup {
			err = multierr.Append(err, fmt.Errorf("agent 名称重复: %s", agent.Name))
		}
		seen[agent.Name] = struct{}{}

		if len(agent.Venues) == 0 {
			err = multierr.Append(err, fmt.Errorf("agents[%s].venues 至少配置一个平台", agent.Name))
		}
		for _, v := range agent.Venues {
			if !isKnownVenue(v) {
				err = multierr.Append(err, fmt.Errorf("agents[%s] 引用未知平台: %s", agent.Name, v))
			}
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		err = multierr.Append(err, errors.New("redis.addr 不能为空"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	for venueName, table := range c.Precision {
		if !isKnownVenue(venueName) {
			err = multierr.Append(err, fmt.Errorf("precision 引用未知平台: %s", venueName))
			continue
		}
		for asset, spec := range table {
			if spec.QuantityStep <= 0 || spec.PriceStep <= 0 {
				err = multierr.Append(err, fmt.Errorf("precision.%s.%s 步长必须为正", venueName, asset))
			}
			if spec.MinQuantity < 0 || spec.MinNotional < 0 {
				err = multierr.Append(err, fmt.Errorf("precision.%s.%s 最小值不能为负", venueName, asset))
			}
		}
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func isKnownVenue(name string) bool {
	for _, v := range KnownVenues {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
