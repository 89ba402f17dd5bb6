package poll

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the sleep between two probe invocations.
const DefaultInterval = 500 * time.Millisecond

// Flag is the completion signal shared between Until and a probe.
// Only the probe sets it; Until only reads it.
type Flag struct {
	done atomic.Bool
}

// Set marks the awaited condition as reached.
func (f *Flag) Set() {
	f.done.Store(true)
}

// IsSet reports whether the probe has signaled completion.
func (f *Flag) IsSet() bool {
	return f.done.Load()
}

// Probe checks one condition against an external system. It calls done.Set()
// when the condition holds and returns its outcome either way.
type Probe[T any] func(ctx context.Context, done *Flag) (T, error)

type options struct {
	interval     time.Duration
	probeTimeout time.Duration
	sleep        func(time.Duration)
}

type Option func(*options)

// WithInterval overrides the sleep between two invocations.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithProbeTimeout bounds every single invocation through its context.
// Zero leaves invocations unbounded.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.probeTimeout = d
	}
}

func withSleep(fn func(time.Duration)) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

// Until invokes probe until it sets its flag or until timeout has elapsed and
// returns the outcome of the last invocation.
//
// Timeout is not an error: the caller inspects the outcome and decides. Elapsed
// time is the sum of nominal sleep intervals, so the wall clock may overrun the
// timeout by one interval plus one invocation. A probe error stops the loop at
// once and is returned with the outcome of that invocation.
func Until[T any](timeout time.Duration, probe Probe[T], opts ...Option) (T, error) {
	o := options{
		interval: DefaultInterval,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		done    Flag
		elapsed time.Duration
	)
	for attempt := 1; ; attempt++ {
		out, err := invoke(o, probe, &done)
		if err != nil {
			zap.S().Debugw("probe failed", "attempt", attempt, "error", err)
			return out, err
		}
		if done.IsSet() || timeout <= 0 {
			zap.S().Debugw("poll finished", "attempt", attempt, "done", done.IsSet())
			return out, nil
		}

		o.sleep(o.interval)
		elapsed += o.interval
		if elapsed >= timeout {
			zap.S().Debugw("poll timed out", "attempt", attempt, "timeout", timeout)
			return out, nil
		}
	}
}

func invoke[T any](o options, probe Probe[T], done *Flag) (T, error) {
	ctx := context.Background()
	if o.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.probeTimeout)
		defer cancel()
	}
	return probe(ctx, done)
}
