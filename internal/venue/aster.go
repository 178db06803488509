package venue

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
)

// NewAster 构造 Aster 适配器，使用 API Key/Secret 鉴权。
func NewAster(cfg config.VenueConfig, creds config.VenueCredentials, policy RetryPolicy, logger *zap.Logger) (*CCXTAdapter, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, errors.New("venue: aster 需要 api_key 与 api_secret")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"apiKey":          creds.APIKey,
		"secret":          creds.APISecret,
		"options": map[string]interface{}{
			"defaultType": "swap",
		},
	}

	ex := ccxt.NewAster(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return newCCXTAdapter("aster", ex, cfg.Markets, policy, logger), nil
}
