package filters

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

type limitOptions struct {
	// Rate is the sustained number of invocations per second.
	Rate float64 `mapstructure:"rate"`

	// Burst is the bucket size. Defaults to 1.
	Burst int `mapstructure:"burst"`

	// Wait blocks until a token is available instead of rejecting.
	Wait bool `mapstructure:"wait"`
}

// buildLimit rate-limits every matched operation with its own token bucket.
// Over-limit invocations are rejected, or delayed when Wait is set; a
// cancelled wait is a rejection too.
func buildLimit(name string, options map[string]any, deps Deps) (matcher, error) {
	opts := limitOptions{Burst: 1}
	if err := decode(options, &opts); err != nil {
		return nil, err
	}
	if opts.Rate <= 0 {
		return nil, errors.New("rate must be positive")
	}
	if opts.Burst < 1 {
		return nil, errors.New("burst must be at least 1")
	}

	logger := deps.logger()
	return func(op *index.OperationDescriptor) (advisor.Filter, bool) {
		limiter := rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)
		return advisor.FilterFunc(func(ctx context.Context, inv *advisor.Invocation, next advisor.Next) (any, error) {
			if opts.Wait {
				if err := limiter.Wait(ctx); err != nil {
					return nil, reject(name, "rate limit wait for %s: %v", inv.Key(), err)
				}
				return next(ctx)
			}
			if !limiter.Allow() {
				logger.Warn("rate limit exceeded",
					"advisor", name,
					"operation", inv.Key(),
					"invocation_id", inv.ID,
				)
				return nil, reject(name, "rate limit exceeded for %s", inv.Key())
			}
			return next(ctx)
		}), true
	}, nil
}
