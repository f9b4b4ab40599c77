package api

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
)

type HandleErrorFunc func(w http.ResponseWriter, r *http.Request, err error)
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func toHTTPHandlerFunc(handler HandlerFunc, errorHandler HandleErrorFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		err := handler(writer, request)
		if err != nil {
			errorHandler(writer, request, err)
		}
	}
}

func (a *API) Routes(opts *RunOptions) (chi.Router, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if opts.UseRealIPMiddleware {
		// For X-Forwarded-For and X-Real-IP set by a reverse proxy.
		r.Use(middleware.RealIP)
	}
	if opts.LogHttpRequests {
		r.Use(CreateLoggerMiddleware(a.logger))
	}
	r.Use(middleware.Recoverer)
	if opts.CollectMetrics {
		r.Use(metricsMiddleware)
	}
	if opts.RouteNotFoundHandler != nil {
		r.NotFound(opts.RouteNotFoundHandler)
	}

	errHandler := NewErrorHandler(a.logger)
	wrapper := func(handlerFunc HandlerFunc) http.HandlerFunc {
		return toHTTPHandlerFunc(handlerFunc, errHandler.Handle)
	}

	if opts.EnableHeartbeatRoute {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte("OK")); err != nil {
				a.logger.Sugar().Errorf("Can't write 'OK' to ResponseWriter: %+v", err)
			}
		})
	}

	var rateLimit func(http.Handler) http.Handler
	if opts.RateLimiterOpts != nil {
		rateLimiter, err := createRateLimiter(opts.RateLimiterOpts)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		rateLimit = rateLimiter.RateLimit
	}

	limited := func(r chi.Router) {
		if rateLimit != nil {
			r.Use(rateLimit)
		}
	}
	r.Group(func(r chi.Router) {
		limited(r)
		r.Get("/catalog", wrapper(a.Catalog))
	})
	r.Route("/users/{user}/session", func(r chi.Router) {
		// Clients poll this while a write settles.
		r.Get("/pending", wrapper(a.Pending))
		r.Group(func(r chi.Router) {
			limited(r)
			r.Get("/", wrapper(a.GetSession))
			r.Put("/", wrapper(a.PutSession))
			r.Delete("/", wrapper(a.DeleteSession))
		})
	})
	return r, nil
}
