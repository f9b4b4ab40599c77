package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/drinktrack/drinktrack/pkg/api"
	"github.com/drinktrack/drinktrack/pkg/logging"
	"github.com/drinktrack/drinktrack/pkg/storage"
)

type config struct {
	lp logging.Parameters

	apiAddr         string
	dbPath          string
	catalogPath     string
	prometheus      string
	rateLimitRPS    int
	rateLimitBurst  int
	maxConnections  int
	openTimeout     time.Duration
	cacheSize       int
	realIP          bool
	logHTTPRequests bool
}

func (c *config) String() string {
	return fmt.Sprintf("{Logger: %s, api-address: %s, db-path: %s, catalog: %s, prometheus: %s, "+
		"rate-limit-rps: %d, rate-limit-burst: %d, max-connections: %d, open-timeout: %s, cache-size: %d, "+
		"real-ip: %t, log-http-requests: %t}",
		c.lp.String(), c.apiAddr, c.dbPath, c.catalogPath, c.prometheus,
		c.rateLimitRPS, c.rateLimitBurst, c.maxConnections, c.openTimeout, c.cacheSize,
		c.realIP, c.logHTTPRequests)
}

func (c *config) parse(fs *flag.FlagSet, args []string) error {
	c.lp.Initialize(fs)
	fs.StringVar(&c.apiAddr, "api-address", "127.0.0.1:8080", "Address of the HTTP API.")
	fs.StringVar(&c.dbPath, "db-path", "./drinkd-db", "Path to the sessions database directory.")
	fs.StringVar(&c.catalogPath, "catalog", "",
		"Path to a JSON file with the drink catalog. The built-in catalog is used when empty.")
	fs.StringVar(&c.prometheus, "prometheus", "",
		"Address of the Prometheus metrics endpoint. Disabled when empty.")
	fs.IntVar(&c.rateLimitRPS, "rate-limit-rps", 10,
		"Requests per second allowed for one client address. Zero disables rate limiting.")
	fs.IntVar(&c.rateLimitBurst, "rate-limit-burst", 20, "Burst of requests allowed over the rate limit.")
	fs.IntVar(&c.maxConnections, "api-max-connections", api.DefaultMaxConnections,
		"Maximum number of simultaneous API connections. Zero means no limit.")
	fs.DurationVar(&c.openTimeout, "open-timeout", 10*time.Second,
		"How long to wait for a database locked by another process.")
	fs.IntVar(&c.cacheSize, "cache-size", storage.DefaultParams("").CacheSize,
		"Size of the session read cache in bytes.")
	fs.BoolVar(&c.realIP, "real-ip", false,
		"Take client addresses from X-Forwarded-For and X-Real-IP headers. Enable only behind a proxy.")
	fs.BoolVar(&c.logHTTPRequests, "log-http-requests", true, "Log every served HTTP request at debug level.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.lp.Parse(); err != nil {
		return err
	}
	if c.rateLimitRPS < 0 || c.rateLimitBurst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	if c.maxConnections < 0 {
		return errors.New("api-max-connections must not be negative")
	}
	if c.dbPath == "" {
		return errors.New("empty db-path")
	}
	return nil
}

func (c *config) storageParams() storage.Params {
	p := storage.DefaultParams(c.dbPath)
	p.OpenTimeout = c.openTimeout
	p.CacheSize = c.cacheSize
	return p
}

func (c *config) apiRunOptions() *api.RunOptions {
	opts := api.DefaultRunOptions()
	opts.UseRealIPMiddleware = c.realIP
	opts.LogHttpRequests = c.logHTTPRequests
	opts.MaxConnections = c.maxConnections
	if c.rateLimitRPS == 0 {
		opts.RateLimiterOpts = nil
	} else {
		opts.RateLimiterOpts.MaxRequestsPerSecond = c.rateLimitRPS
		opts.RateLimiterOpts.MaxBurst = c.rateLimitBurst
	}
	return opts
}
