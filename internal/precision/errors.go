package precision

import "fmt"

// ValidationError 表示订单在送往平台之前就被本地约束拒绝。
// 这一类错误不重试，直接作为该腿的终态上报。
type ValidationError struct {
	Venue string
	Asset string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("precision: %s@%s %s: %s", e.Asset, e.Venue, e.Field, e.Msg)
}
