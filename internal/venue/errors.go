package venue

import (
	"context"
	"errors"
	"fmt"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// Error 为平台调用失败的统一包装，保留平台与操作信息。
type Error struct {
	Venue       string
	Op          string
	Err         error
	RateLimited bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrSymbolNotMapped 表示该平台未配置对应币种的交易对。
var ErrSymbolNotMapped = errors.New("venue: 币种未配置交易对")

// IsRateLimited 判断错误是否为平台限频。
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var venueErr *Error
	if errors.As(err, &venueErr) && venueErr.RateLimited {
		return true
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.RateLimitExceededErrType, ccxt.DDoSProtectionErrType:
			return true
		}
	}

	return false
}

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
