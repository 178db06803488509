package decision

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/fiamma-chain/AITradeNews/internal/market"
)

const decisionTemplate = `
你是一个专业的加密货币合约交易员。现在有一条最新消息，请判断它对 {{ .Signal.Asset }} 永续合约的短期价格影响，并给出交易方向与信心度。

消息来源: {{ .Signal.Source }}
消息标题: {{ .Signal.Headline }}
{{- if .Signal.Body }}
消息正文:
{{ .Signal.Body }}
{{- end }}
{{- if .HasBrief }}

当前市场状况：
- 最新价格: {{ printf "%.4f" .Brief.LastPrice }}
- 24小时涨跌: {{ printf "%.2f" .Brief.Change24hPct }}%
- RSI(14): {{ printf "%.2f" .Brief.RSI14 }}
- ATR(14): {{ printf "%.4f" .Brief.ATR14 }}
- 24小时成交量: {{ printf "%.2f" .Brief.Volume24h }}
{{- end }}

判断时请遵循：
1. 只评估该消息对短期（数小时内）价格的直接影响；
2. 利好且影响明确做多，利空且影响明确做空；
3. 消息与该币种无关、影响不明或已被市场消化时返回 none；
4. 信心度反映方向判断的确定性，拿不准时给低分。

请严格输出唯一的 JSON 对象，格式如下：
{
  "direction": "long|short|none",
  "confidence": 0-100,
  "reasoning": "支撑结论的关键理由"
}
`

var tmpl = template.Must(template.New("decision").Parse(decisionTemplate))

type promptContext struct {
	Signal   Signal
	Brief    market.Brief
	HasBrief bool
}

// BuildPrompt 将信号与市场简报渲染成提示词字符串。
func BuildPrompt(signal Signal, brief *market.Brief) (string, error) {
	if err := signal.Validate(); err != nil {
		return "", err
	}

	ctx := promptContext{Signal: signal}
	if brief != nil {
		ctx.Brief = *brief
		ctx.HasBrief = true
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}
