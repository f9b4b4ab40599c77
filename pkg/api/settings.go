package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxConnections         = 128
	DefaultRateLimiterStorageSize = 64 * 1024 // 64 KB
	DefaultShutdownTimeout        = 5 * time.Second
	defaultMaxBodySize            = 64 * 1024
)

type RunOptions struct {
	RateLimiterOpts      *RateLimiterOptions
	LogHttpRequests      bool
	CollectMetrics       bool
	UseRealIPMiddleware  bool
	EnableHeartbeatRoute bool
	RouteNotFoundHandler func(w http.ResponseWriter, r *http.Request)
	MaxConnections       int
	ShutdownTimeout      time.Duration
}

type RateLimiterOptions struct {
	MemoryCacheSize      int
	MaxRequestsPerSecond int
	MaxBurst             int
}

func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		RateLimiterOpts: &RateLimiterOptions{
			MemoryCacheSize:      DefaultRateLimiterStorageSize,
			MaxRequestsPerSecond: 10,
			MaxBurst:             20,
		},
		LogHttpRequests:      true,
		EnableHeartbeatRoute: true,
		UseRealIPMiddleware:  false,
		CollectMetrics:       true,
		RouteNotFoundHandler: func(w http.ResponseWriter, r *http.Request) {
			zap.S().Debugf("Route not found: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		},
		MaxConnections:  DefaultMaxConnections,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}
