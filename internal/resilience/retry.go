package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry pacing. Attempts counts the first try; Attempts 1
// disables retries.
type Policy struct {
	Attempts  int           `yaml:"attempts" mapstructure:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	Factor    float64       `yaml:"factor" mapstructure:"factor"`
	Jitter    float64       `yaml:"jitter" mapstructure:"jitter"`
}

// DefaultPolicy suits page fetches and model calls alike.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  20 * time.Second,
		Factor:    2.0,
		Jitter:    0.25,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 20 * time.Second
	}
	if p.Factor <= 0 {
		p.Factor = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Retry runs fn up to p.Attempts times, backing off between tries. Only
// Retryable errors are retried; context cancellation stops immediately. The
// op label names the call in retry logs.
func Retry(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := RetryVal(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryVal is Retry for calls that produce a value.
func RetryVal[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !Retryable(err) || attempt == p.Attempts-1 {
			break
		}

		zap.L().Warn("retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}
