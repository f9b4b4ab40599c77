package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coocood/freecache"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/drinktrack/drinktrack/pkg/drinks"
	"github.com/drinktrack/drinktrack/pkg/logging"
)

const (
	sessionKeyPrefix byte = 's'

	minCacheSize     = 512 * 1024
	defaultCacheSize = 8 * 1024 * 1024
	cacheTTLSeconds  = 600
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("storage is closed")
)

var (
	defaultReadOptions  = &opt.ReadOptions{}
	defaultWriteOptions = &opt.WriteOptions{Sync: true}
)

type Params struct {
	Path string
	// CacheSize is the size of the read cache in bytes. Values below 512KiB are raised to it.
	CacheSize int
	// OpenTimeout bounds the time spent waiting for a database locked by another process.
	// Zero means a single attempt.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

func DefaultParams(path string) Params {
	return Params{
		Path:        path,
		CacheSize:   defaultCacheSize,
		OpenTimeout: 10 * time.Second,
	}
}

// Store keeps one session per user in LevelDB.
type Store struct {
	db    *leveldb.DB
	cache *freecache.Cache
	log   *slog.Logger

	mu        sync.Mutex
	closed    bool
	nextID    uint64
	listeners map[string]map[uint64]chan drinks.Session
}

func Open(params Params) (*Store, error) {
	log := params.Logger
	if log == nil {
		log = slog.Default()
	}
	db, err := openDB(params, log)
	if err != nil {
		return nil, err
	}
	size := params.CacheSize
	if size < minCacheSize {
		size = minCacheSize
	}
	return &Store{
		db:        db,
		cache:     freecache.NewCache(size),
		log:       log,
		listeners: make(map[string]map[uint64]chan drinks.Session),
	}, nil
}

func openDB(params Params, log *slog.Logger) (*leveldb.DB, error) {
	var db *leveldb.DB
	open := func() error {
		var err error
		db, err = leveldb.OpenFile(params.Path, &opt.Options{})
		if err == nil {
			return nil
		}
		if lerrors.IsCorrupted(err) {
			return backoff.Permanent(err)
		}
		log.Debug("Failed to open storage, retrying", slog.String("path", params.Path), logging.Error(err))
		return err
	}
	var bo backoff.BackOff = &backoff.StopBackOff{}
	if params.OpenTimeout > 0 {
		bo = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxInterval(time.Second),
			backoff.WithMaxElapsedTime(params.OpenTimeout),
		)
	}
	if err := backoff.Retry(open, bo); err != nil {
		return nil, errors.Wrapf(err, "failed to open storage at '%s'", params.Path)
	}
	return db, nil
}

func sessionKey(userID string) []byte {
	k := make([]byte, 0, 1+len(userID))
	k = append(k, sessionKeyPrefix)
	return append(k, userID...)
}

// Get returns the stored session of the user.
func (s *Store) Get(userID string) (drinks.Session, error) {
	key := sessionKey(userID)
	b, err := s.cache.Get(key)
	if err != nil {
		b, err = s.load(userID, key)
		if err != nil {
			return drinks.Session{}, err
		}
	}
	var session drinks.Session
	if err := session.UnmarshalBinary(b); err != nil {
		return drinks.Session{}, errors.Wrapf(err, "corrupted session of '%s'", userID)
	}
	return session, nil
}

// load reads a session missing from the cache and caches it. Writers hold mu as well, so a value read
// here never replaces the cache entry of a newer write or resurrects a deleted session.
func (s *Store) load(userID string, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if b, err := s.cache.Get(key); err == nil {
		return b, nil
	}
	b, err := s.db.Get(key, defaultReadOptions)
	if err != nil {
		switch {
		case errors.Is(err, leveldb.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, leveldb.ErrClosed):
			return nil, ErrClosed
		}
		return nil, errors.Wrapf(err, "failed to read session of '%s'", userID)
	}
	if err := s.cache.Set(key, b, cacheTTLSeconds); err != nil {
		s.log.Debug("Session is not cached", slog.String("user", userID), logging.Error(err))
	}
	return b, nil
}

// Put stores the session, replacing the previous one of the same user, and notifies listeners.
func (s *Store) Put(ctx context.Context, session drinks.Session) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "session is not stored")
	}
	b, err := session.MarshalBinary()
	if err != nil {
		return err
	}
	key := sessionKey(session.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.Put(key, b, defaultWriteOptions); err != nil {
		s.cache.Del(key)
		return errors.Wrapf(err, "failed to write session of '%s'", session.UserID)
	}
	if err := s.cache.Set(key, b, cacheTTLSeconds); err != nil {
		s.cache.Del(key)
	}
	for _, ch := range s.listeners[session.UserID] {
		deliver(ch, session.Clone())
	}
	return nil
}

func (s *Store) Delete(userID string) error {
	key := sessionKey(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cache.Del(key)
	if err := s.db.Delete(key, defaultWriteOptions); err != nil {
		return errors.Wrapf(err, "failed to delete session of '%s'", userID)
	}
	return nil
}

// Users lists users having a stored session.
func (s *Store) Users() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte{sessionKeyPrefix}), defaultReadOptions)
	defer it.Release()
	var users []string
	for it.Next() {
		users = append(users, string(it.Key()[1:]))
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return users, nil
}

// Listen subscribes to stored sessions of the user. A slow reader only sees the latest session.
// The returned function unsubscribes and closes the channel.
func (s *Store) Listen(userID string) (<-chan drinks.Session, func()) {
	ch := make(chan drinks.Session, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	if s.listeners[userID] == nil {
		s.listeners[userID] = make(map[uint64]chan drinks.Session)
	}
	s.listeners[userID][id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if l, ok := s.listeners[userID][id]; ok {
				delete(s.listeners[userID], id)
				if len(s.listeners[userID]) == 0 {
					delete(s.listeners, userID)
				}
				close(l)
			}
		})
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, byID := range s.listeners {
		for _, ch := range byID {
			close(ch)
		}
	}
	s.listeners = nil
	s.cache.Clear()
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close storage")
	}
	return nil
}

// deliver replaces an unread value in the single-slot channel.
func deliver(ch chan drinks.Session, v drinks.Session) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
