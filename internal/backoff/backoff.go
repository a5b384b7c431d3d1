// Package backoff implements the exponential-with-jitter retry controller
// used by the enqueue pipeline's sends (component A of the queue core). It
// is parameterised entirely by a caller-supplied shouldRetry decision
// callback and keeps no state between Run calls - a fresh delay sequence is
// built for every call, so two concurrent Run calls never interfere.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	cenkaltibackoff "github.com/cenkalti/backoff/v5"
)

// Documented defaults for the retry controller.
const (
	DefaultMaxRetries     = 3
	DefaultJitterFraction = 0.5
	DefaultBase           = 2.0
)

// Controller holds the retry policy's shape. It is immutable once
// constructed and safe to share across goroutines - Run carries all
// per-invocation state locally.
type Controller struct {
	MaxRetries     int
	JitterFraction float64
	Base           float64
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithMaxRetries overrides the default of 3. Must be >= 1.
func WithMaxRetries(n int) Option { return func(c *Controller) { c.MaxRetries = n } }

// WithJitterFraction overrides the default of 0.5. Expected within [0.1, 1].
func WithJitterFraction(f float64) Option { return func(c *Controller) { c.JitterFraction = f } }

// WithBase overrides the default of 2. Expected within [1, 10].
func WithBase(b float64) Option { return func(c *Controller) { c.Base = b } }

// New builds a Controller with the documented defaults, overridden by opts.
func New(opts ...Option) *Controller {
	c := &Controller{
		MaxRetries:     DefaultMaxRetries,
		JitterFraction: DefaultJitterFraction,
		Base:           DefaultBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retrySignal marks a nil-error result that shouldRetry still wants retried,
// so it can travel through cenkalti/backoff's error-driven retry loop
// without being confused for a real failure.
type retrySignal struct{}

func (retrySignal) Error() string { return "backoff: retry requested on successful result" }

// Run invokes action for attempts numbered from 1. After each call,
// shouldRetry is consulted with the result (err nil) or the error (result
// zero-value). While shouldRetry reports true and the attempt count remains
// below MaxRetries, Run sleeps for
// round(Base^attempt * (1 + JitterFraction*(rand-0.5)) * 1000) milliseconds
// and retries; on the last attempt it surfaces the most recent outcome
// without sleeping.
func Run[T any](ctx context.Context, c *Controller, action func(attempt int) (T, error), shouldRetry func(result T, err error) bool) (T, error) {
	attempt := 0
	delay := &jitteredDelay{base: c.Base, jitterFraction: c.JitterFraction}

	op := func() (T, error) {
		attempt++
		result, err := action(attempt)

		if !shouldRetry(result, err) {
			if err != nil {
				return result, cenkaltibackoff.Permanent(err)
			}
			return result, nil
		}

		if attempt >= c.MaxRetries {
			if err != nil {
				return result, cenkaltibackoff.Permanent(err)
			}
			return result, nil
		}

		delay.attempt = attempt
		if err == nil {
			return result, retrySignal{}
		}
		return result, err
	}

	maxTries := c.MaxRetries
	if maxTries < 1 {
		maxTries = 1
	}

	result, err := cenkaltibackoff.Retry(ctx, op,
		cenkaltibackoff.WithBackOff(delay),
		cenkaltibackoff.WithMaxTries(uint(maxTries)),
	)
	if err != nil {
		var rs retrySignal
		if errors.As(err, &rs) {
			return result, nil
		}
		return result, err
	}
	return result, nil
}

// jitteredDelay computes the spec's exact backoff formula and implements
// cenkalti/backoff's BackOff interface so Run can delegate sleeping and
// context cancellation to that library.
type jitteredDelay struct {
	base           float64
	jitterFraction float64
	attempt        int
}

func (d *jitteredDelay) NextBackOff() time.Duration {
	factor := 1 + d.jitterFraction*(rand.Float64()-0.5)
	ms := math.Round(math.Pow(d.base, float64(d.attempt)) * factor * 1000)
	return time.Duration(ms) * time.Millisecond
}

func (d *jitteredDelay) Reset() { d.attempt = 0 }
