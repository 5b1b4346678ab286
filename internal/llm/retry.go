package llm

import (
	"context"
	"math"
	"time"
)

// SleepFunc waits for d or until ctx is done. Tests substitute a recorder.
type SleepFunc func(ctx context.Context, d time.Duration) error

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 6,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2,
	}
}

func (p RetryPolicy) delay(attempt int, hint *time.Duration) time.Duration {
	if hint != nil && *hint > 0 {
		if p.MaxDelay > 0 && *hint > p.MaxDelay {
			return p.MaxDelay
		}
		return *hint
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry returns middleware that re-issues a completion while the error is
// retryable and the budget lasts. Non-retryable errors pass through on the
// first attempt. A nil sleep uses a real timer.
func Retry(policy RetryPolicy, sleep SleepFunc) Middleware {
	if sleep == nil {
		sleep = sleepContext
	}
	return MiddlewareFunc{
		Complete: func(ctx context.Context, req Request, next CompleteFunc) (Response, error) {
			for attempt := 0; ; attempt++ {
				resp, err := next(ctx, req)
				if err == nil || attempt >= policy.MaxRetries || !IsRetryable(err) {
					return resp, err
				}
				var hint *time.Duration
				if e, ok := err.(Error); ok {
					hint = e.RetryAfter()
				}
				if serr := sleep(ctx, policy.delay(attempt, hint)); serr != nil {
					return Response{}, err
				}
			}
		},
	}
}
