// Package await blocks until a polled condition becomes true.
package await

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const defaultInterval = 100 * time.Millisecond

var (
	ErrTimeout = errors.New("condition was not met in time")

	errNotYet = errors.New("condition is not met yet")
)

type Options struct {
	// Interval between polls, 100ms by default.
	Interval time.Duration
	// MaxInterval enables exponential growth of the interval up to this value when greater than Interval.
	MaxInterval time.Duration
	// Timeout limits the total wait. Zero leaves it to the context.
	Timeout time.Duration
}

func (o Options) backOff() backoff.BackOff {
	interval := o.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	if o.MaxInterval <= interval {
		return backoff.NewConstantBackOff(interval)
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(interval),
		backoff.WithMaxInterval(o.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
}

// Until polls cond until it reports true. The first poll happens immediately.
// An error returned by cond stops the wait and is returned as is.
func Until(ctx context.Context, cond func() (bool, error), opts Options) error {
	pollCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeoutCause(ctx, opts.Timeout, ErrTimeout)
		defer cancel()
	}
	poll := func() error {
		ok, err := cond()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotYet
		}
		return nil
	}
	err := backoff.Retry(poll, backoff.WithContext(opts.backOff(), pollCtx))
	switch {
	case err == nil:
		return nil
	case errors.Is(context.Cause(pollCtx), ErrTimeout) && ctx.Err() == nil:
		return ErrTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}
