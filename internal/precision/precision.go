package precision

import (
	"math"
	"strconv"
	"strings"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/venue"
)

// RoundMode 控制数量归一化的取整方向。
type RoundMode int

const (
	// RoundDown 向下取整，开仓时使用，确保不超过意图仓位。
	RoundDown RoundMode = iota
	// RoundHalfUp 四舍五入，平仓时使用，避免留下粉尘仓位。
	RoundHalfUp
)

// Spec 为单个 (平台, 币种) 的精度约束。
type Spec struct {
	Venue        string
	Asset        string
	QuantityStep float64
	PriceStep    float64
	MinQuantity  float64
	MinNotional  float64
}

// Table 保存全部精度约束，加载后只读，可并发访问。
type Table struct {
	specs map[string]map[string]Spec
}

// NewTable 从配置构建精度表。
func NewTable(cfg map[string]map[string]config.PrecisionSpec) *Table {
	specs := make(map[string]map[string]Spec, len(cfg))
	for venueName, assets := range cfg {
		venueName = strings.ToLower(strings.TrimSpace(venueName))
		table := make(map[string]Spec, len(assets))
		for asset, raw := range assets {
			asset = strings.ToUpper(strings.TrimSpace(asset))
			table[asset] = Spec{
				Venue:        venueName,
				Asset:        asset,
				QuantityStep: raw.QuantityStep,
				PriceStep:    raw.PriceStep,
				MinQuantity:  raw.MinQuantity,
				MinNotional:  raw.MinNotional,
			}
		}
		specs[venueName] = table
	}
	return &Table{specs: specs}
}

// Lookup 查找精度约束。
func (t *Table) Lookup(venueName, asset string) (Spec, bool) {
	assets, ok := t.specs[strings.ToLower(strings.TrimSpace(venueName))]
	if !ok {
		return Spec{}, false
	}
	spec, ok := assets[strings.ToUpper(strings.TrimSpace(asset))]
	return spec, ok
}

// Require 查找精度约束，缺失时返回 ValidationError。
func (t *Table) Require(venueName, asset string) (Spec, error) {
	spec, ok := t.Lookup(venueName, asset)
	if !ok {
		return Spec{}, &ValidationError{
			Venue: strings.ToLower(venueName),
			Asset: strings.ToUpper(asset),
			Field: "precision",
			Msg:   "未配置精度约束",
		}
	}
	return spec, nil
}

// NormalizeQuantity 将数量对齐到 quantity_step。
func (s Spec) NormalizeQuantity(quantity float64, mode RoundMode) float64 {
	if quantity <= 0 || s.QuantityStep <= 0 {
		return 0
	}

	steps := quantity / s.QuantityStep
	switch mode {
	case RoundHalfUp:
		steps = math.Floor(steps + 0.5 + 1e-9)
	default:
		// 1e-9 吸收二进制浮点误差，防止如 0.30000000000000004/0.1 被错误下取
		steps = math.Floor(steps + 1e-9)
	}
	if steps <= 0 {
		return 0
	}
	return snap(steps*s.QuantityStep, s.QuantityStep)
}

// NormalizePrice 将价格对齐到 price_step（就近取整）。
func (s Spec) NormalizePrice(price float64) float64 {
	if price <= 0 || s.PriceStep <= 0 {
		return price
	}
	steps := math.Floor(price/s.PriceStep + 0.5 + 1e-9)
	return snap(steps*s.PriceStep, s.PriceStep)
}

// GuardPrice 根据滑点上限计算护栏价并对齐到 price_step。
// 买入方向上浮，卖出方向下压，保证市价意图不会以无界价格成交。
func (s Spec) GuardPrice(markPrice float64, side venue.Side, slippage float64) float64 {
	if markPrice <= 0 {
		return 0
	}
	bound := markPrice
	if side == venue.SideBuy {
		bound = markPrice * (1 + slippage)
	} else {
		bound = markPrice * (1 - slippage)
	}
	return s.NormalizePrice(bound)
}

// Validate 校验归一化后的数量是否满足平台最小约束。
func (s Spec) Validate(quantity, price float64) error {
	if quantity <= 0 {
		return &ValidationError{
			Venue: s.Venue,
			Asset: s.Asset,
			Field: "quantity",
			Msg:   "归一化后数量为零",
		}
	}
	if s.MinQuantity > 0 && quantity < s.MinQuantity {
		return &ValidationError{
			Venue: s.Venue,
			Asset: s.Asset,
			Field: "min_quantity",
			Msg:   "数量低于平台最小下单量",
		}
	}
	if s.MinNotional > 0 && price > 0 && quantity*price < s.MinNotional {
		return &ValidationError{
			Venue: s.Venue,
			Asset: s.Asset,
			Field: "min_notional",
			Msg:   "名义价值低于平台最小限制",
		}
	}
	return nil
}

// snap 按步长小数位重排结果，消除步长运算引入的浮点尾差。
func snap(value, step float64) float64 {
	decimals := stepDecimals(step)
	out, err := strconv.ParseFloat(strconv.FormatFloat(value, 'f', decimals, 64), 64)
	if err != nil {
		return value
	}
	return out
}

func stepDecimals(step float64) int {
	text := strconv.FormatFloat(step, 'f', -1, 64)
	idx := strings.IndexByte(text, '.')
	if idx < 0 {
		return 0
	}
	return len(text) - idx - 1
}
