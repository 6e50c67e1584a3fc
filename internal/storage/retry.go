package storage

import (
	"context"
	"time"
)

const (
	MaxRetries = 3
	RetryDelay = time.Second
)

// RetryPolicy configures WithRetry. The zero value uses MaxRetries,
// RetryDelay and ClassifyError.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Classify    func(error) ErrorKind
	// OnRetry is called before sleeping after a failed attempt.
	OnRetry func(attempt int, err error)
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = MaxRetries
	}
	if p.Delay <= 0 {
		p.Delay = RetryDelay
	}
	if p.Classify == nil {
		p.Classify = ClassifyError
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithRetry runs op until it succeeds, fails with a non-transient error, or
// the attempts run out. The delay grows linearly: Delay*attempt. It returns
// the number of attempts made.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, int, error) {
	p := policy.withDefaults()

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, attempt, nil
		}
		if p.Classify(err) != KindTransient || attempt == p.MaxAttempts {
			return result, attempt, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := p.Sleep(ctx, p.Delay*time.Duration(attempt)); serr != nil {
			return result, attempt, err
		}
	}
	return result, p.MaxAttempts, err
}
