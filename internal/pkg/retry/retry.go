package retry

import (
	"Timeline/internal/api/config"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 有界重试策略：固定次数 + 指数退避
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: time.Duration(cfg.InitialInterval) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxInterval) * time.Millisecond,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 100 * time.Millisecond
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

// Error 重试耗尽或遇到不可重试错误后返回
type Error struct {
	Err       error
	Attempts  int
	Permanent bool
}

func (e *Error) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent failure after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent 标记为不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent 判断 Do 返回的错误是否因不可重试而终止
func IsPermanent(err error) bool {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Permanent
	}
	var pErr *backoff.PermanentError
	return errors.As(err, &pErr)
}

// Do 执行 op，失败按指数退避重试，至多 MaxAttempts 次
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify func(err error, wait time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)

	attempts := 0
	permanent := false
	err := backoff.RetryNotify(func() error {
		attempts++
		opErr := op(ctx)
		var pErr *backoff.PermanentError
		if errors.As(opErr, &pErr) {
			permanent = true
		}
		return opErr
	}, policy, notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &Error{Err: err, Attempts: attempts, Permanent: permanent}
}
