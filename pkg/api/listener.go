package api

import (
	"net"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
)

const defaultEvictAfter = time.Second

// limitListener accepts at most n simultaneous connections. When the quota stays exhausted for
// evictAfter, the connection that has not been read from for the longest time is closed.
type limitListener struct {
	net.Listener
	sem        chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	evictAfter time.Duration

	mu     sync.Mutex
	nextID uint64
	conns  *orderedmap.OrderedMap[uint64, *limitedConn] // least recently read first
}

func newLimitListener(l net.Listener, n int, evictAfter time.Duration) *limitListener {
	return &limitListener{
		Listener:   l,
		sem:        make(chan struct{}, n),
		done:       make(chan struct{}),
		evictAfter: evictAfter,
		conns:      orderedmap.NewOrderedMap[uint64, *limitedConn](),
	}
}

func (l *limitListener) acquire() bool {
	timer := time.NewTimer(l.evictAfter)
	defer timer.Stop()
	for {
		select {
		case <-l.done:
			return false
		case l.sem <- struct{}{}:
			return true
		case <-timer.C:
			l.evictIdle()
			timer.Reset(l.evictAfter)
		}
	}
}

func (l *limitListener) evictIdle() {
	l.mu.Lock()
	el := l.conns.Front()
	l.mu.Unlock()
	if el != nil {
		_ = el.Value.Close()
	}
}

func (l *limitListener) touch(c *limitedConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-inserting moves the connection to the back; closed connections stay out.
	if l.conns.Delete(c.id) {
		l.conns.Set(c.id, c)
	}
}

func (l *limitListener) release(c *limitedConn) {
	l.mu.Lock()
	l.conns.Delete(c.id)
	l.mu.Unlock()
	<-l.sem
}

func (l *limitListener) Accept() (net.Conn, error) {
	if !l.acquire() {
		return nil, net.ErrClosed
	}
	c, err := l.Listener.Accept()
	if err != nil {
		<-l.sem
		return nil, err
	}
	l.mu.Lock()
	lc := &limitedConn{Conn: c, id: l.nextID, listener: l}
	l.nextID++
	l.conns.Set(lc.id, lc)
	l.mu.Unlock()
	return lc, nil
}

func (l *limitListener) Close() error {
	err := l.Listener.Close()
	l.closeOnce.Do(func() { close(l.done) })
	return err
}

type limitedConn struct {
	net.Conn
	id          uint64
	listener    *limitListener
	releaseOnce sync.Once
}

func (c *limitedConn) Read(b []byte) (int, error) {
	c.listener.touch(c)
	return c.Conn.Read(b)
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.releaseOnce.Do(func() { c.listener.release(c) })
	return err
}
