// Package updater serializes asynchronous updates of a single piece of state.
//
// A Serializer forwards submitted forms to an update function one at a time. Forms submitted while an update
// is in flight are not queued: they overwrite a single pending slot, so once the in-flight update finishes
// only the newest form is written next. Intermediate forms may never reach the update function, but the last
// submitted form always does.
package updater

import (
	"context"
	stderrs "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/drinktrack/drinktrack/pkg/execution"
	"github.com/drinktrack/drinktrack/pkg/logging"
)

// errClosed is logged for submissions made after Close.
var errClosed = errors.New("serializer is closed")

// UpdateFunc persists a form. It is never called concurrently by the same Serializer.
type UpdateFunc[F any] func(ctx context.Context, form F) error

// Observer receives notifications about serializer activity.
type Observer interface {
	Submitted(name string)
	Coalesced(name string)
	Dropped(name string)
	CycleFinished(name string, d time.Duration, err error)
}

type Options struct {
	// Name identifies the serializer in logs and metrics.
	Name string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// OnError receives every failed update. Returning nil hides the failure from Wait.
	OnError func(error) error
	// OnPendingChange is notified when IsPending flips. Calls are serialized and always settle on the
	// current state. It must not call Submit.
	OnPendingChange func(pending bool)
	Observer        Observer
}

// Serializer guarantees at most one outstanding update and never loses the most recent submission.
type Serializer[F any] struct {
	ctx    context.Context
	update UpdateFunc[F]
	opts   Options
	log    *slog.Logger

	mu         sync.Mutex
	busy       bool
	closed     bool
	slot       F
	hasPending bool

	pending atomic.Bool

	notifyMu     sync.Mutex
	lastNotified bool

	loops execution.TaskGroup
}

// New creates a Serializer. ctx is handed to every update call and is never cancelled by the Serializer.
func New[F any](ctx context.Context, update UpdateFunc[F], opts Options) *Serializer[F] {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Name != "" {
		log = log.With(slog.String("serializer", opts.Name))
	}
	return &Serializer[F]{
		ctx:    ctx,
		update: update,
		opts:   opts,
		log:    log,
	}
}

// Submit requests an update with the given form and returns immediately.
// If nothing is in flight the update starts right away, otherwise the form replaces any pending one.
func (s *Serializer[F]) Submit(form F) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug("Submission after close dropped", logging.Error(errClosed))
		s.observe(func(o Observer) { o.Dropped(s.opts.Name) })
		return
	}
	s.observe(func(o Observer) { o.Submitted(s.opts.Name) })
	if s.busy {
		replaced := s.hasPending
		s.slot = form
		s.hasPending = true
		s.mu.Unlock()
		if replaced {
			s.observe(func(o Observer) { o.Coalesced(s.opts.Name) })
		}
		return
	}
	s.busy = true
	s.pending.Store(true)
	s.mu.Unlock()
	s.notify()

	s.loops.Run(func() error { return s.drain(form) })
}

// IsPending reports whether an update is in flight or waiting to start.
func (s *Serializer[F]) IsPending() bool {
	return s.pending.Load()
}

// Wait blocks until the running update chain settles and returns the failures that were not hidden by
// Options.OnError since the previous Wait.
func (s *Serializer[F]) Wait() error {
	return s.loops.Wait()
}

// Close rejects further submissions, discards the pending form and waits for the in-flight update.
func (s *Serializer[F]) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.hasPending {
			var zero F
			s.slot = zero
			s.hasPending = false
			s.observe(func(o Observer) { o.Dropped(s.opts.Name) })
		}
	}
	s.mu.Unlock()
	return s.Wait()
}

func (s *Serializer[F]) drain(form F) error {
	var failures error
	for {
		if err := s.cycle(form); err != nil {
			failures = stderrs.Join(failures, err)
		}
		s.mu.Lock()
		if !s.hasPending {
			s.busy = false
			s.pending.Store(false)
			s.mu.Unlock()
			s.notify()
			return failures
		}
		form = s.slot
		var zero F
		s.slot = zero
		s.hasPending = false
		s.mu.Unlock()
	}
}

func (s *Serializer[F]) cycle(form F) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("update panicked: %v", r)
		}
		d := time.Since(start)
		s.observe(func(o Observer) { o.CycleFinished(s.opts.Name, d, err) })
		if err == nil {
			return
		}
		s.log.Warn("Update failed", slog.Duration("took", d), logging.Error(err))
		if s.opts.OnError != nil {
			err = s.opts.OnError(err)
		}
	}()
	if err := s.update(s.ctx, form); err != nil {
		return errors.Wrap(err, "update failed")
	}
	return nil
}

func (s *Serializer[F]) notify() {
	if s.opts.OnPendingChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	v := s.pending.Load()
	if v == s.lastNotified {
		return
	}
	s.lastNotified = v
	s.opts.OnPendingChange(v)
}

func (s *Serializer[F]) observe(f func(o Observer)) {
	if s.opts.Observer != nil {
		f(s.opts.Observer)
	}
}
