package venue

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
)

// NewHyperliquid 构造 Hyperliquid 适配器。
// Hyperliquid 以钱包地址+私钥签名，无传统 API Key。
func NewHyperliquid(cfg config.VenueConfig, creds config.VenueCredentials, policy RetryPolicy, logger *zap.Logger) (*CCXTAdapter, error) {
	if creds.Wallet == "" || creds.PrivateKey == "" {
		return nil, errors.New("venue: hyperliquid 需要钱包地址与私钥")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"walletAddress":   creds.Wallet,
		"privateKey":      creds.PrivateKey,
		"options": map[string]interface{}{
			"defaultType": "swap",
		},
	}

	ex := ccxt.NewHyperliquid(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return newCCXTAdapter("hyperliquid", ex, cfg.Markets, policy, logger), nil
}
