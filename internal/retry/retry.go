// Package retry runs stage operations under a bounded attempt budget with
// exponential backoff. Only transient failures earn another attempt:
// permanent errors and conflicts return immediately, and an exhausted budget
// is tagged services.ErrExhausted so the caller can route the document to the
// isolation sink.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docpipe/internal/logging"
	"docpipe/internal/services"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
)

// Policy describes a stage's retry budget.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy returns the policy used when configuration leaves a field
// unset.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

func (p Policy) normalized() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaults.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaults.MaxBackoff
	}
	return p
}

// Backoff returns the delay before the given attempt (1-based). The first
// attempt never waits.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt <= 1 {
		return 0
	}
	delay := p.InitialBackoff
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Do invokes op until it succeeds, fails permanently, conflicts, or the
// attempt budget runs out. The attempt number passed to op is 1-based so
// callers can persist it. A nil logger suppresses attempt diagnostics.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, stage string, op func(ctx context.Context, attempt int) error) error {
	p = p.normalized()
	if logger == nil {
		logger = logging.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if delay := p.Backoff(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return services.Wrap(services.ErrTimeout, stage, "retry wait", "", ctx.Err())
			}
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !services.IsTransient(lastErr) {
			return lastErr
		}
		if attempt < p.MaxAttempts {
			logger.Warn("attempt failed, retrying",
				logging.String(logging.FieldStage, stage),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("backoff", p.Backoff(attempt+1)),
				logging.Error(lastErr))
		}
	}

	return services.Wrap(services.ErrExhausted, stage, "",
		fmt.Sprintf("gave up after %d attempts", p.MaxAttempts), lastErr)
}
