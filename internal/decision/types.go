package decision

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction 为模型给出的交易方向。
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNone  Direction = "none"
)

// Signal 为触发决策的外部事件，一经创建不可变。
type Signal struct {
	ID         string
	Source     string
	Asset      string
	Headline   string
	Body       string
	ReceivedAt time.Time
}

// NewSignal 创建带唯一ID的信号。
func NewSignal(source, asset, headline, body string) Signal {
	return Signal{
		ID:         uuid.NewString(),
		Source:     strings.TrimSpace(source),
		Asset:      strings.ToUpper(strings.TrimSpace(asset)),
		Headline:   strings.TrimSpace(headline),
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
}

// Validate 校验信号的基本完整性。
func (s Signal) Validate() error {
	if s.Asset == "" {
		return errors.New("signal asset 不能为空")
	}
	if s.Headline == "" && s.Body == "" {
		return errors.New("signal 内容不能为空")
	}
	return nil
}

// Decision 为模型返回的决策，信心度取值 [0,100]。
type Decision struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
}

var validDirections = map[Direction]struct{}{
	DirectionLong:  {},
	DirectionShort: {},
	DirectionNone:  {},
}

// Validate 校验决策字段合法性。
func (d Decision) Validate() error {
	direction := Direction(strings.ToLower(strings.TrimSpace(string(d.Direction))))
	if direction == "" {
		return errors.New("direction 不能为空")
	}
	if _, ok := validDirections[direction]; !ok {
		return fmt.Errorf("direction 字段取值非法: %s", d.Direction)
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("confidence 必须位于 [0,100]，当前为 %f", d.Confidence)
	}
	if direction != DirectionNone && strings.TrimSpace(d.Reasoning) == "" {
		return errors.New("reasoning 不能为空")
	}
	return nil
}

// Normalize 返回方向小写化后的副本。
func (d Decision) Normalize() Decision {
	d.Direction = Direction(strings.ToLower(strings.TrimSpace(string(d.Direction))))
	return d
}
