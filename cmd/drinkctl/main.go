package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/drinktrack/drinktrack/pkg/await"
	"github.com/drinktrack/drinktrack/pkg/client"
	"github.com/drinktrack/drinktrack/pkg/drinks"
	"github.com/drinktrack/drinktrack/pkg/logging"
)

type addition struct {
	kind string
	n    int
}

// additions collects repeated -add kind[=n] flags.
type additions []addition

func (a *additions) String() string {
	parts := make([]string, len(*a))
	for i, x := range *a {
		parts[i] = fmt.Sprintf("%s=%d", x.kind, x.n)
	}
	return strings.Join(parts, ",")
}

func (a *additions) Set(v string) error {
	kind, count, found := strings.Cut(v, "=")
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return errors.Errorf("empty drink kind in '%s'", v)
	}
	n := 1
	if found {
		var err error
		if n, err = strconv.Atoi(count); err != nil {
			return errors.Wrapf(err, "invalid count in '%s'", v)
		}
	}
	*a = append(*a, addition{kind: kind, n: n})
	return nil
}

type config struct {
	lp      logging.Parameters
	apiURL  string
	user    string
	adds    additions
	timeout time.Duration
}

func (c *config) parse(fs *flag.FlagSet, args []string) error {
	c.lp.Initialize(fs)
	fs.StringVar(&c.apiURL, "api", "http://127.0.0.1:8080", "Base URL of the drinkd API.")
	fs.StringVar(&c.user, "user", "", "User whose session is updated.")
	fs.Var(&c.adds, "add", "Drink to add as kind[=n]; n may be negative. Can be repeated.")
	fs.DurationVar(&c.timeout, "timeout", 10*time.Second, "How long to wait for the session to be stored.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.lp.Parse(); err != nil {
		return err
	}
	if strings.TrimSpace(c.user) == "" {
		return errors.New("-user is required")
	}
	return nil
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	c := new(config)
	if err := c.parse(flag.CommandLine, os.Args[1:]); err != nil {
		slog.Error("Failed to parse application parameters", logging.Error(err))
		return 2
	}
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, c.lp.Type, c.lp.Level)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, c, &http.Client{Timeout: 5 * time.Second}, os.Stdout); err != nil {
		slog.Error("Failed to update session", logging.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, c *config, httpClient *http.Client, out io.Writer) error {
	cl, err := client.NewClient(client.Options{BaseUrl: c.apiURL, Client: httpClient})
	if err != nil {
		return err
	}

	now := time.Now()
	var form drinks.Session
	switch stored, _, err := cl.Sessions.Get(ctx, c.user); {
	case err == nil:
		form = stored.Session
	case errors.Is(err, client.ErrNotFound):
		slog.Debug("Starting a new session", "user", c.user)
		form = drinks.NewSession(c.user, now)
	default:
		return errors.Wrap(err, "failed to read session")
	}

	if len(c.adds) > 0 {
		for _, a := range c.adds {
			form = form.Add(a.kind, a.n, now)
		}
		pending, _, err := cl.Sessions.Put(ctx, form)
		if err != nil {
			return errors.Wrap(err, "failed to submit session")
		}
		if pending {
			slog.Debug("Waiting for the session to be stored", "user", c.user)
			err := await.Until(ctx, func() (bool, error) {
				p, _, err := cl.Sessions.Pending(ctx, c.user)
				return !p, err
			}, await.Options{Interval: 50 * time.Millisecond, MaxInterval: time.Second, Timeout: c.timeout})
			if err != nil {
				return errors.Wrap(err, "session was not stored in time")
			}
		}
	}

	stored, _, err := cl.Sessions.Get(ctx, c.user)
	if err != nil {
		return errors.Wrap(err, "failed to read stored session")
	}
	printSession(out, stored)
	return nil
}

func printSession(w io.Writer, s *client.Session) {
	_, _ = fmt.Fprintf(w, "session %s of %s, started %s\n", s.ID, s.UserID, s.StartedAt.Local().Format(time.Kitchen))
	for _, kind := range s.Kinds() {
		_, _ = fmt.Fprintf(w, "  %-10s %d\n", kind, s.Counts[kind])
	}
	_, _ = fmt.Fprintf(w, "total: %d drinks, %.1f units\n", s.Total, s.Units)
}
