package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Run listens on address and serves handler until ctx is done.
func Run(ctx context.Context, address string, handler http.Handler, opts *RunOptions) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on '%s'", address)
	}
	return Serve(ctx, lis, handler, opts)
}

// Serve serves handler on lis until ctx is done, then shuts the server down gracefully.
func Serve(ctx context.Context, lis net.Listener, handler http.Handler, opts *RunOptions) error {
	if opts.MaxConnections > 0 {
		lis = newLimitListener(lis, opts.MaxConnections, defaultEvictAfter)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(lis)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "API server failed")
	case <-ctx.Done():
	}

	zap.S().Info("Shutting down API...")
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "failed to shutdown API server")
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "API server failed")
	}
	return nil
}
