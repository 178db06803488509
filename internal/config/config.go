package config

import (
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "aitrade"
)

// Load 读取配置文件并结合环境变量返回 Config。
// 先尝试加载 .env，使各 Agent 的私钥无需写入 yaml。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	// 先展开 ${VAR} 占位符，使凭证可以留在环境变量里。
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %q 失败: %w", path, err)
	}
	if err := v.ReadConfig(strings.NewReader(os.ExpandEnv(string(raw)))); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("database.path", "data/aitrade.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.timeout", "20s")

	v.SetDefault("trading.confidence_floor", 60.0)
	v.SetDefault("trading.min_leverage", 10.0)
	v.SetDefault("trading.max_leverage", 50.0)
	v.SetDefault("trading.min_margin_pct", 0.30)
	v.SetDefault("trading.max_margin_pct", 1.00)
	v.SetDefault("trading.stop_loss_pct", 0.10)
	v.SetDefault("trading.take_profit_pct", 0.25)
	v.SetDefault("trading.slippage", 0.01)
	v.SetDefault("trading.cooldown", "60s")
	v.SetDefault("trading.same_direction_policy", "hold")
	v.SetDefault("trading.oracle_timeout", "20s")
	v.SetDefault("trading.dispatch_timeout", "2m")
	v.SetDefault("trading.max_daily_loss", 0.0)
	v.SetDefault("trading.max_daily_trades", 0)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.min_delay", "500ms")
	v.SetDefault("retry.max_delay", "5s")

	v.SetDefault("venues.hyperliquid.enabled", true)
	v.SetDefault("venues.hyperliquid.use_sandbox", false)
	v.SetDefault("venues.aster.enabled", false)
	v.SetDefault("venues.aster.use_sandbox", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("listeners.binance.enabled", false)
	v.SetDefault("listeners.binance.poll_interval", "30s")
	v.SetDefault("listeners.upbit.enabled", false)
	v.SetDefault("listeners.upbit.poll_interval", "60s")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 8787)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
