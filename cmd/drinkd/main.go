package main

import (
	"context"
	stderrs "errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/drinktrack/drinktrack/pkg/api"
	"github.com/drinktrack/drinktrack/pkg/catalog"
	"github.com/drinktrack/drinktrack/pkg/logging"
	"github.com/drinktrack/drinktrack/pkg/metrics"
	"github.com/drinktrack/drinktrack/pkg/sessions"
	"github.com/drinktrack/drinktrack/pkg/storage"
)

const (
	defaultTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	os.Exit(realMain()) // deferred calls of run must complete before exit
}

func realMain() int {
	c := new(config)
	if err := c.parse(flag.CommandLine, os.Args[1:]); err != nil {
		slog.Error("Failed to parse application parameters", logging.Error(err))
		return 2
	}
	h := logging.DefaultHandler(c.lp)
	slog.SetDefault(slog.New(h))
	logger := setupZapLogger(c.lp)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(c, h, logger); err != nil {
		slog.Error("Failed to run drinkd", logging.ErrorTrace(err))
		return 1
	}
	return 0
}

// setupZapLogger builds the HTTP layer logger matching the slog configuration.
func setupZapLogger(lp logging.Parameters) *zap.Logger {
	al := zap.NewAtomicLevelAt(zapLevel(lp.Level))
	var enc zapcore.Encoder
	switch lp.Type {
	case logging.LoggerJSON:
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(os.Stdout), al)).Named("http")
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l < slog.LevelInfo:
		return zap.DebugLevel
	case l < slog.LevelWarn:
		return zap.InfoLevel
	case l < slog.LevelError:
		return zap.WarnLevel
	default:
		return zap.ErrorLevel
	}
}

func run(c *config, h slog.Handler, logger *zap.Logger) (retErr error) {
	eg, ctx := errgroup.WithContext(context.Background())
	defer func() {
		if wErr := eg.Wait(); !errors.Is(wErr, context.Canceled) {
			retErr = stderrs.Join(retErr, wErr)
		}
	}()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Debug("Starting with parameters", "parameters", c.String())

	observer := metrics.NewSerializer()
	if err := observer.Register(prometheus.DefaultRegisterer); err != nil {
		return errors.Wrap(err, "failed to register serializer metrics")
	}
	if c.prometheus != "" {
		eg.Go(func() error {
			<-runPrometheusMetricsServer(ctx, c.prometheus)
			return nil
		})
	}

	cat, err := loadCatalog(afero.NewOsFs(), c.catalogPath)
	if err != nil {
		return err
	}

	sp := c.storageParams()
	sp.Logger = logging.Namespaced(h, "storage")
	store, err := storage.Open(sp)
	if err != nil {
		return errors.Wrap(err, "failed to open sessions storage")
	}
	defer func() {
		if clErr := store.Close(); clErr != nil {
			retErr = stderrs.Join(retErr, errors.Wrap(clErr, "failed to close sessions storage"))
		}
	}()

	// Writes must outlive the signal context, so in-flight and queued forms are flushed on shutdown.
	registry := sessions.NewRegistry(context.Background(), store, cat, sessions.Options{
		Logger:    logging.Namespaced(h, "sessions"),
		Observer:  observer,
		EvictIdle: true,
	})
	defer func() {
		if fErr := registry.Flush(); fErr != nil {
			retErr = stderrs.Join(retErr, errors.Wrap(fErr, "failed to flush sessions"))
		}
		if clErr := registry.Close(); clErr != nil {
			retErr = stderrs.Join(retErr, errors.Wrap(clErr, "failed to close sessions registry"))
		}
	}()

	opts := c.apiRunOptions()
	router, err := api.NewAPI(store, registry, cat, logger).Routes(opts)
	if err != nil {
		return errors.Wrap(err, "failed to create API routes")
	}
	slog.Info("Starting API server", "address", c.apiAddr)
	if err := api.Run(ctx, c.apiAddr, router, opts); err != nil {
		return errors.Wrap(err, "API server failed")
	}
	slog.Info("User termination in progress...")
	return nil
}

func loadCatalog(fs afero.Fs, path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.Load(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load drink catalog")
	}
	slog.Info("Drink catalog loaded", "path", path, "drinks", len(c.Drinks()))
	return c, nil
}

func runPrometheusMetricsServer(ctx context.Context, prometheusAddr string) <-chan struct{} {
	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.Handler())
	s := &http.Server{
		Addr:              prometheusAddr,
		Handler:           h,
		ReadHeaderTimeout: defaultTimeout,
		ReadTimeout:       defaultTimeout,
	}
	s.RegisterOnShutdown(func() {
		slog.Info("Prometheus metrics server is shutting down...")
	})
	go func() {
		slog.Info("Starting prometheus metrics server", "address", prometheusAddr)
		err := s.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start prometheus metrics server", logging.Error(err))
		}
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown prometheus", logging.Error(err))
		}
	}()
	return done
}
