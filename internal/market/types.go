package market

import "time"

// Candle 表示单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Brief 为注入决策提示词的市场简报。
type Brief struct {
	Asset        string
	LastPrice    float64
	Change24hPct float64
	RSI14        float64
	ATR14        float64
	Volume24h    float64
	RetrievedAt  time.Time
}
