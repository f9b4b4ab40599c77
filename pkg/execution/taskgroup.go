package execution

import (
	stderrs "errors"
	"sync"
)

// TaskGroup runs error-returning tasks on separate goroutines and waits for them.
// Unlike errgroup.Group it does not cancel anything on failure: every task runs to completion and
// every error that survives the handler is reported by Wait.
// The zero value is ready to use and the group can be reused after Wait returns.
type TaskGroup struct {
	mu      sync.Mutex
	active  int
	done    chan struct{} // closed when the last active task finishes, nil while idle
	handler func(error) error
	err     error
}

// NewTaskGroup creates a group with the given error handler.
// The handler receives every non-nil task error and returns the error to keep, or nil to discard it.
func NewTaskGroup(handler func(error) error) *TaskGroup {
	return &TaskGroup{handler: handler}
}

// OnError replaces the error handler. The handler is invoked under the group lock, so it must not call
// methods of the same group.
func (g *TaskGroup) OnError(handler func(error) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = handler
}

// Run starts f on a new goroutine.
func (g *TaskGroup) Run(f func() error) {
	g.mu.Lock()
	if g.active == 0 {
		g.done = make(chan struct{})
	}
	g.active++
	g.mu.Unlock()

	go func() {
		err := f()
		g.mu.Lock()
		defer g.mu.Unlock()
		if err != nil {
			if g.handler != nil {
				err = g.handler(err)
			}
			if err != nil {
				g.err = stderrs.Join(g.err, err)
			}
		}
		g.active--
		if g.active == 0 {
			close(g.done)
			g.done = nil
		}
	}()
}

// Active returns the number of tasks that have not finished yet.
func (g *TaskGroup) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Wait blocks until all tasks started before the call are finished and returns the collected errors.
// Collected errors are reset, so a second Wait without new failures returns nil.
func (g *TaskGroup) Wait() error {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done != nil {
		<-done
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.err
	g.err = nil
	return err
}
