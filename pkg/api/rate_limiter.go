package api

import (
	"net"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// createRateLimiter builds a GCRA limiter with one bucket per client host and, on user routes, per user.
// The limiter must be installed below the router that binds the {user} parameter.
func createRateLimiter(opts *RateLimiterOptions) (throttled.HTTPRateLimiter, error) {
	store, err := memstore.New(opts.MemoryCacheSize)
	if err != nil {
		return throttled.HTTPRateLimiter{},
			errors.Wrapf(err, "createRateLimiter: failed to create memstore with capacity %d", opts.MemoryCacheSize)
	}
	limiter, err := throttled.NewGCRARateLimiter(store, throttled.RateQuota{
		MaxRate:  throttled.PerSec(opts.MaxRequestsPerSecond),
		MaxBurst: opts.MaxBurst,
	})
	if err != nil {
		return throttled.HTTPRateLimiter{}, errors.Wrap(err, "createRateLimiter: can't create rate limiter")
	}
	return throttled.HTTPRateLimiter{
		RateLimiter: limiter,
		VaryBy:      &throttled.VaryBy{Custom: rateLimitKey},
	}, nil
}

func rateLimitKey(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if user := chi.URLParam(r, "user"); user != "" {
		return host + "/" + user
	}
	return host
}
