package venue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 统一控制平台调用的有界指数退避重试。
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy 返回默认重试参数。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.MinDelay <= 0 {
		p.MinDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	return p
}

// call 以统一的退避策略执行单个平台操作。
// 限频错误与其他可重试错误同样退避重试，超过上限后原样上抛，绝不静默吞掉。
func call(ctx context.Context, logger *zap.Logger, policy RetryPolicy, venueName, op string, fn func() error) error {
	policy = policy.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := policy.MinDelay
	attempt := 0

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		latency := time.Since(start)
		if err == nil {
			if attempt > 1 {
				logger.Info("平台调用重试后成功",
					zap.String("venue", venueName),
					zap.String("operation", op),
					zap.Int("attempts", attempt),
					zap.Duration("latency", latency),
				)
			}
			return nil
		}

		rateLimited := IsRateLimited(err)
		if (!IsRetryable(err) && !rateLimited) || attempt >= policy.MaxAttempts {
			logger.Error("平台调用失败",
				zap.String("venue", venueName),
				zap.String("operation", op),
				zap.Int("attempts", attempt),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
			return &Error{Venue: venueName, Op: op, Err: err, RateLimited: rateLimited}
		}

		wait := delay
		if wait > policy.MaxDelay {
			wait = policy.MaxDelay
		}

		logger.Warn("平台调用失败，等待重试",
			zap.String("venue", venueName),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Bool("rate_limited", rateLimited),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
