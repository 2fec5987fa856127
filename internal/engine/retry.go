package engine

import (
	"context"
	"log/slog"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type attemptFunc func(context.Context) (*attempt, error)

var errStepFailed = errors.New("step failed")

// runWithRetry runs fn under the error handling options of an action.
// Retryable failures are retried with exponential backoff, and a failure
// that remains may be turned back into a running verdict when the action
// continues on failure. The failed step output is kept either way
func (e *Engine) runWithRetry(
	ctx context.Context, action *api.FlowAction, c *Constants,
	opts *api.ErrorHandlingOptions, fn attemptFunc,
) (*api.FlowContext, error) {
	res, err := e.runWithExponentialBackoff(ctx, action, c, opts, fn)
	if err != nil {
		return nil, err
	}
	fc := res.fc
	if fc.Verdict.Status != api.VerdictFailed || c.TestSingleStep ||
		!opts.ContinueOnFailureEnabled() {
		return fc, nil
	}
	slog.Info("Continuing after step failure",
		log.RunID(fc.RunID),
		log.StepName(action.Name))
	return fc.SetVerdict(api.Running()), nil
}

// runWithExponentialBackoff repeats fn while shouldRetry allows it. The
// final attempt is returned whether or not it failed
func (e *Engine) runWithExponentialBackoff(
	ctx context.Context, action *api.FlowAction, c *Constants,
	opts *api.ErrorHandlingOptions, fn attemptFunc,
) (*attempt, error) {
	count := 0
	var fatal error
	op := func() (*attempt, error) {
		count++
		res, err := fn(ctx)
		if err != nil {
			fatal = err
			return nil, backoff.Permanent(err)
		}
		if !e.shouldRetry(res, c, opts, count) {
			return res, nil
		}
		if res.cause != nil {
			return res, res.cause
		}
		return res, errStepFailed
	}
	notify := func(err error, delay time.Duration) {
		slog.Warn("Retrying failed step",
			log.RunID(c.RunID),
			log.StepName(action.Name),
			slog.Int("attempt", count),
			slog.Duration("delay", delay),
			log.Error(err))
	}

	res, err := backoff.RetryNotifyWithData[*attempt](
		op, e.retryBackOff(ctx), notify,
	)
	switch {
	case fatal != nil:
		return nil, fatal
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return res, nil
	}
}

func (e *Engine) shouldRetry(
	res *attempt, c *Constants, opts *api.ErrorHandlingOptions, count int,
) bool {
	return res.fc.Verdict.Status == api.VerdictFailed &&
		opts.RetryOnFailureEnabled() &&
		!c.TestSingleStep &&
		piece.IsRetryable(res.cause) &&
		count < e.config.Retry.MaxAttempts
}

// retryBackOff waits interval * exponential^n after the nth attempt. No
// jitter or ceiling is applied
func (e *Engine) retryBackOff(ctx context.Context) backoff.BackOff {
	r := e.config.Retry
	exp := float64(r.Exponential)
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Duration(float64(r.Interval)*exp)),
		backoff.WithMultiplier(exp),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(time.Duration(math.MaxInt64)),
		backoff.WithMaxElapsedTime(0),
	)
	retries := uint64(max(r.MaxAttempts-1, 0))
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}
