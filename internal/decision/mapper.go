package decision

import (
	"errors"
	"fmt"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

var (
	// ErrNoTrade 表示模型认为该消息不构成交易机会。
	ErrNoTrade = errors.New("decision: 模型判定不交易")
	// ErrLowConfidence 表示信心度低于门槛，不开仓。
	ErrLowConfidence = errors.New("decision: 信心度低于门槛")
)

// Intent 为映射后的开仓意图。
// StopLossPct/TakeProfitPct 来自配置档位，仅作为外部监控的参考边界，
// 引擎本身不挂保护单。
type Intent struct {
	Asset         string
	Side          venue.Side
	Leverage      float64
	MarginPct     float64
	StopLossPct   float64
	TakeProfitPct float64
	Confidence    float64
	Reasoning     string
}

// Mapper 将模型信心度线性映射为杠杆与保证金占比。
// 信心度等于门槛时取区间下限，等于100时取区间上限。
type Mapper struct {
	cfg config.TradingConfig
}

// NewMapper 创建映射器。
func NewMapper(cfg config.TradingConfig) *Mapper {
	return &Mapper{cfg: cfg}
}

// Map 把决策转换为开仓意图。
// venueMaxLeverage 为平台允许的最大杠杆，为0时表示未知、不做收紧。
func (m *Mapper) Map(asset string, d Decision, venueMaxLeverage float64) (Intent, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Intent{}, err
	}

	if d.Direction == DirectionNone {
		return Intent{}, ErrNoTrade
	}
	if d.Confidence < m.cfg.ConfidenceFloor {
		return Intent{}, fmt.Errorf("%w: %.1f < %.1f", ErrLowConfidence, d.Confidence, m.cfg.ConfidenceFloor)
	}

	side := venue.SideBuy
	if d.Direction == DirectionShort {
		side = venue.SideSell
	}

	leverage := interpolate(d.Confidence, m.cfg.ConfidenceFloor, m.cfg.MinLeverage, m.cfg.MaxLeverage)
	if venueMaxLeverage > 0 && leverage > venueMaxLeverage {
		leverage = venueMaxLeverage
	}
	if leverage < 1 {
		leverage = 1
	}

	marginPct := interpolate(d.Confidence, m.cfg.ConfidenceFloor, m.cfg.MinMarginPct, m.cfg.MaxMarginPct)

	return Intent{
		Asset:         asset,
		Side:          side,
		Leverage:      leverage,
		MarginPct:     marginPct,
		StopLossPct:   m.cfg.StopLossPct,
		TakeProfitPct: m.cfg.TakeProfitPct,
		Confidence:    d.Confidence,
		Reasoning:     d.Reasoning,
	}, nil
}

// interpolate 在 [floor,100] 上把信心度线性映射到 [min,max] 并夹紧。
func interpolate(confidence, floor, min, max float64) float64 {
	if max <= min {
		return min
	}
	span := 100 - floor
	if span <= 0 {
		return max
	}
	ratio := (confidence - floor) / span
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return min + ratio*(max-min)
}
