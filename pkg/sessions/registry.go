package sessions

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/pkg/errors"

	"github.com/drinktrack/drinktrack/pkg/catalog"
	"github.com/drinktrack/drinktrack/pkg/drinks"
	"github.com/drinktrack/drinktrack/pkg/execution"
	"github.com/drinktrack/drinktrack/pkg/logging"
	"github.com/drinktrack/drinktrack/pkg/updater"
)

//go:generate mockgen -destination=../mock/persister.go -package=mock github.com/drinktrack/drinktrack/pkg/sessions Persister

const serializerName = "session"

var ErrClosed = errors.New("session registry is closed")

// Persister writes a session form to durable storage.
type Persister interface {
	Put(ctx context.Context, s drinks.Session) error
}

type Options struct {
	Logger   *slog.Logger
	Observer updater.Observer
	// EvictIdle forgets the serializer of a user once its writes settled without a failure.
	// The next submission of the user starts a new one.
	EvictIdle bool
}

type entry struct {
	serializer *updater.Serializer[drinks.Session]

	mu      sync.Mutex
	lastErr error
}

func (e *entry) fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err
	return nil
}

func (e *entry) failed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr != nil
}

func (e *entry) takeErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.lastErr
	e.lastErr = nil
	return err
}

// Registry owns one update serializer per user. Every serializer writes through the same Persister.
type Registry struct {
	ctx       context.Context
	persister Persister
	catalog   *catalog.Catalog
	log       *slog.Logger
	observer  updater.Observer
	evictIdle bool
	evictions execution.TaskGroup

	mu      sync.Mutex
	closed  bool
	entries map[string]*entry
}

// NewRegistry creates a registry. ctx is handed to every Persister call.
func NewRegistry(ctx context.Context, persister Persister, cat *catalog.Catalog, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		ctx:       ctx,
		persister: persister,
		catalog:   cat,
		log:       log,
		observer:  opts.Observer,
		evictIdle: opts.EvictIdle,
		entries:   make(map[string]*entry),
	}
}

// Submit validates the session and hands it to the serializer of its user.
func (r *Registry) Submit(s drinks.Session) error {
	if err := s.Validate(r.catalog); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.entry(s.UserID)
	if err != nil {
		return err
	}
	// Submitting under mu keeps the entry from being evicted in between.
	e.serializer.Submit(s.Clone())
	return nil
}

// entry must be called with mu held.
func (r *Registry) entry(userID string) (*entry, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if e, ok := r.entries[userID]; ok {
		return e, nil
	}
	e := new(entry)
	log := r.log.With(slog.String("user", userID))
	e.serializer = updater.New[drinks.Session](r.ctx, r.persister.Put, updater.Options{
		Name:   serializerName,
		Logger: log,
		OnError: func(err error) error {
			log.Error("Failed to persist session", logging.Error(err))
			return e.fail(err)
		},
		OnPendingChange: func(pending bool) {
			log.Debug("Session persistence state changed", slog.Bool("pending", pending))
			if !pending && r.evictIdle {
				// Called with the serializer's notification lock held, which Submit may wait on under mu.
				r.evictions.Run(func() error {
					r.evict(userID, e)
					return nil
				})
			}
		},
		Observer: r.observer,
	})
	r.entries[userID] = e
	return e, nil
}

// evict forgets the entry if it is still the user's current one, idle and without an unreported failure.
func (r *Registry) evict(userID string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[userID] != e || e.serializer.IsPending() || e.failed() {
		return
	}
	delete(r.entries, userID)
	r.log.Debug("Idle session serializer evicted", slog.String("user", userID))
}

// IsPending reports whether a write of the user's session is in flight or queued.
func (r *Registry) IsPending(userID string) bool {
	r.mu.Lock()
	e, ok := r.entries[userID]
	r.mu.Unlock()
	return ok && e.serializer.IsPending()
}

// Wait blocks until the user's writes settle and returns the latest persistence failure since the
// previous Wait, if any.
func (r *Registry) Wait(userID string) error {
	r.mu.Lock()
	e, ok := r.entries[userID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := e.serializer.Wait(); err != nil {
		return err
	}
	return e.takeErr()
}

// Release closes the user's serializer, waiting for the in-flight write. A pending form is discarded.
func (r *Registry) Release(userID string) error {
	r.mu.Lock()
	e, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := e.serializer.Close(); err != nil {
		return err
	}
	return e.takeErr()
}

// Users returns the users with a live serializer.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]string, 0, len(r.entries))
	for u := range r.entries {
		users = append(users, u)
	}
	return users
}

// Flush waits until the writes of every user settle, queued forms included, and returns the joined
// failures. Submissions made while flushing may or may not be covered.
func (r *Registry) Flush() error {
	r.mu.Lock()
	entries := maps.Clone(r.entries)
	r.mu.Unlock()

	g := execution.NewTaskGroup(nil)
	for userID, e := range entries {
		g.Run(func() error {
			if err := e.serializer.Wait(); err != nil {
				return errors.Wrapf(err, "user '%s'", userID)
			}
			if err := e.takeErr(); err != nil {
				return errors.Wrapf(err, "user '%s'", userID)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops accepting submissions and closes all serializers concurrently.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	g := execution.NewTaskGroup(func(err error) error {
		r.log.Warn("Session serializer closed with failure", logging.Error(err))
		return err
	})
	for userID, e := range entries {
		g.Run(func() error {
			if err := e.serializer.Close(); err != nil {
				return errors.Wrapf(err, "user '%s'", userID)
			}
			if err := e.takeErr(); err != nil {
				return errors.Wrapf(err, "user '%s'", userID)
			}
			return nil
		})
	}
	err := g.Wait()
	_ = r.evictions.Wait()
	return err
}
