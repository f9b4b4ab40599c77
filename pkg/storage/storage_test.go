package storage

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drinktrack/drinktrack/pkg/drinks"
)

var now = time.Date(2026, 10, 17, 22, 0, 0, 0, time.UTC)

func openStore(t *testing.T) (*Store, string) {
	path := filepath.Join(t.TempDir(), "sessions")
	params := DefaultParams(path)
	params.Logger = slogt.New(t)
	s, err := Open(params)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s, path
}

func TestPutGet(t *testing.T) {
	s, _ := openStore(t)

	_, err := s.Get("alice")
	require.ErrorIs(t, err, ErrNotFound)

	session := drinks.NewSession("alice", now).Add("beer", 2, now)
	require.NoError(t, s.Put(context.Background(), session))

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Counts, got.Counts)

	session = session.Add("wine", 1, now.Add(time.Minute))
	require.NoError(t, s.Put(context.Background(), session))
	got, err = s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"beer": 2, "wine": 1}, got.Counts)
}

func TestGetBypassesCacheAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions")
	s, err := Open(DefaultParams(path))
	require.NoError(t, err)
	session := drinks.NewSession("bob", now).Add("cider", 3, now)
	require.NoError(t, s.Put(context.Background(), session))
	require.NoError(t, s.Close())

	s, err = Open(DefaultParams(path))
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()
	got, err := s.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Counts["cider"])
}

func TestPutRejectsCancelledContext(t *testing.T) {
	s, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Put(ctx, drinks.NewSession("carol", now))
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.Get("carol")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndUsers(t *testing.T) {
	s, _ := openStore(t)
	for _, u := range []string{"dave", "erin", "frank"} {
		require.NoError(t, s.Put(context.Background(), drinks.NewSession(u, now)))
	}
	users, err := s.Users()
	require.NoError(t, err)
	sort.Strings(users)
	assert.Equal(t, []string{"dave", "erin", "frank"}, users)

	require.NoError(t, s.Delete("erin"))
	_, err = s.Get("erin")
	require.ErrorIs(t, err, ErrNotFound)
	users, err = s.Users()
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

// evictAndRace drops the cached session so that get reads the database while write runs.
func evictAndRace(s *Store, userID string, get func(), write func()) {
	s.cache.Del(sessionKey(userID))
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		get()
	}()
	go func() {
		defer wg.Done()
		write()
	}()
	wg.Wait()
}

func TestGetDoesNotResurrectDeletedSession(t *testing.T) {
	s, _ := openStore(t)
	for i := 0; i < 300; i++ {
		require.NoError(t, s.Put(context.Background(), drinks.NewSession("judy", now)))
		evictAndRace(s, "judy",
			func() { _, _ = s.Get("judy") },
			func() { assert.NoError(t, s.Delete("judy")) },
		)
		_, err := s.Get("judy")
		require.ErrorIs(t, err, ErrNotFound, "round %d", i)
	}
}

func TestGetDoesNotCacheOverwrittenSession(t *testing.T) {
	s, _ := openStore(t)
	session := drinks.NewSession("mallory", now)
	for i := 1; i <= 300; i++ {
		require.NoError(t, s.Put(context.Background(), session.Add("beer", i, now)))
		next := session.Add("beer", i+1, now)
		evictAndRace(s, "mallory",
			func() { _, _ = s.Get("mallory") },
			func() { assert.NoError(t, s.Put(context.Background(), next)) },
		)
		got, err := s.Get("mallory")
		require.NoError(t, err)
		require.Equal(t, i+1, got.Counts["beer"], "round %d", i)
	}
}

func TestListenDeliversLatest(t *testing.T) {
	s, _ := openStore(t)
	ch, stop := s.Listen("grace")
	other, stopOther := s.Listen("heidi")
	defer stopOther()

	base := drinks.NewSession("grace", now)
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Put(context.Background(), base.Add("beer", i, now)))
	}
	got := <-ch
	assert.Equal(t, 3, got.Counts["beer"])
	select {
	case <-ch:
		t.Fatal("older sessions must be replaced, not queued")
	default:
	}
	select {
	case <-other:
		t.Fatal("listener of another user must not be notified")
	default:
	}

	stop()
	stop()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestCloseClosesListeners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions")
	s, err := Open(DefaultParams(path))
	require.NoError(t, err)
	ch, stop := s.Listen("ivan")
	require.NoError(t, s.Close())
	_, ok := <-ch
	assert.False(t, ok)
	stop()
	require.ErrorIs(t, s.Put(context.Background(), drinks.NewSession("ivan", now)), ErrClosed)
	_, err = s.Get("ivan")
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, s.Close())
}

func TestOpenWaitsForLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions")
	first, err := Open(DefaultParams(path))
	require.NoError(t, err)

	params := DefaultParams(path)
	params.OpenTimeout = 0
	_, err = Open(params)
	require.Error(t, err, "the database is locked by the first store")

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = first.Close()
	}()
	params.OpenTimeout = 5 * time.Second
	second, err := Open(params)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
