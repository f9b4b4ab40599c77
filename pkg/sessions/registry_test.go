package sessions_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drinktrack/drinktrack/pkg/catalog"
	"github.com/drinktrack/drinktrack/pkg/drinks"
	"github.com/drinktrack/drinktrack/pkg/mock"
	"github.com/drinktrack/drinktrack/pkg/sessions"
	"github.com/drinktrack/drinktrack/pkg/storage"
)

var now = time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)

func beers(userID string, n int) drinks.Session {
	return drinks.NewSession(userID, now).Add("beer", n, now)
}

func TestRegistryCoalescesPerUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	p := mock.NewMockPersister(ctrl)

	started := make(chan drinks.Session, 4)
	release := make(chan struct{})
	var written []int
	p.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s drinks.Session) error {
		written = append(written, s.Counts["beer"])
		started <- s
		<-release
		return nil
	}).Times(2)

	r := sessions.NewRegistry(context.Background(), p, catalog.Default(), sessions.Options{Logger: slogt.New(t)})
	require.NoError(t, r.Submit(beers("alice", 1)))
	<-started
	require.NoError(t, r.Submit(beers("alice", 2)))
	require.NoError(t, r.Submit(beers("alice", 3)))
	assert.True(t, r.IsPending("alice"))
	assert.False(t, r.IsPending("bob"))

	release <- struct{}{}
	<-started
	release <- struct{}{}
	require.NoError(t, r.Wait("alice"))
	assert.False(t, r.IsPending("alice"))
	assert.Equal(t, []int{1, 3}, written)
	require.NoError(t, r.Close())
}

func TestRegistryRejectsInvalidSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mock.NewMockPersister(ctrl) // no calls expected

	r := sessions.NewRegistry(context.Background(), p, catalog.Default(), sessions.Options{Logger: slogt.New(t)})
	err := r.Submit(drinks.NewSession("alice", now).Add("mead", 1, now))
	require.ErrorIs(t, err, drinks.ErrInvalidSession)
	assert.Empty(t, r.Users())
	require.NoError(t, r.Close())
}

func TestRegistryReportsFailureOnceAndRecovers(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	p := mock.NewMockPersister(ctrl)
	failure := errors.New("disk full")
	gomock.InOrder(
		p.EXPECT().Put(gomock.Any(), gomock.Any()).Return(failure),
		p.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil),
	)

	r := sessions.NewRegistry(context.Background(), p, catalog.Default(), sessions.Options{Logger: slogt.New(t)})
	require.NoError(t, r.Submit(beers("carol", 1)))
	require.ErrorIs(t, r.Wait("carol"), failure)
	require.NoError(t, r.Wait("carol"), "a failure is reported once")

	require.NoError(t, r.Submit(beers("carol", 2)))
	require.NoError(t, r.Wait("carol"))
	require.NoError(t, r.Close())
}

func TestRegistryReleaseAndClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	p := mock.NewMockPersister(ctrl)
	p.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	r := sessions.NewRegistry(context.Background(), p, catalog.Default(), sessions.Options{Logger: slogt.New(t)})
	for _, u := range []string{"dave", "erin", "frank"} {
		require.NoError(t, r.Submit(beers(u, 1)))
	}
	assert.Len(t, r.Users(), 3)

	require.NoError(t, r.Release("dave"))
	require.NoError(t, r.Release("dave"))
	assert.Len(t, r.Users(), 2)

	require.NoError(t, r.Close())
	assert.Empty(t, r.Users())
	require.ErrorIs(t, r.Submit(beers("erin", 2)), sessions.ErrClosed)
}

func TestRegistryWithStore(t *testing.T) {
	params := storage.DefaultParams(filepath.Join(t.TempDir(), "db"))
	params.Logger = slogt.New(t)
	st, err := storage.Open(params)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	updates, stop := st.Listen("grace")
	defer stop()

	r := sessions.NewRegistry(context.Background(), st, catalog.Default(), sessions.Options{Logger: slogt.New(t)})
	session := drinks.NewSession("grace", now)
	for i := 1; i <= 20; i++ {
		session = session.Add("wine", 1, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, r.Submit(session))
	}
	require.NoError(t, r.Wait("grace"))

	stored, err := st.Get("grace")
	require.NoError(t, err)
	assert.Equal(t, 20, stored.Counts["wine"])
	last := <-updates
	assert.Equal(t, 20, last.Counts["wine"])
	require.NoError(t, r.Close())
}

func TestRegistryFlushDrainsQueuedForms(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	p := mock.NewMockPersister(ctrl)
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var last int
	p.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s drinks.Session) error {
		if s.UserID == "ivan" {
			return errors.New("disk full")
		}
		started <- struct{}{}
		<-release
		last = s.Counts["beer"]
		return nil
	}).Times(3)

	r := sessions.NewRegistry(context.Background(), p, catalog.Default(), sessions.Options{Logger: slogt.New(t)})
	require.NoError(t, r.Submit(beers("heidi", 1)))
	<-started
	require.NoError(t, r.Submit(beers("heidi", 4)))
	require.NoError(t, r.Submit(beers("ivan", 1)))

	flushed := make(chan error, 1)
	go func() { flushed <- r.Flush() }()
	close(release)

	err := <-flushed
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user 'ivan'")
	assert.Equal(t, 4, last)
	assert.False(t, r.IsPending("heidi"))
	require.NoError(t, r.Close())
}

func TestRegistryEvictsIdleSerializers(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	p := mock.NewMockPersister(ctrl)
	failure := errors.New("disk full")
	var mu sync.Mutex
	written := map[string]int{}
	p.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s drinks.Session) error {
		mu.Lock()
		defer mu.Unlock()
		written[s.UserID]++
		if s.UserID == "judy" {
			return failure
		}
		return nil
	}).Times(3)

	r := sessions.NewRegistry(context.Background(), p, catalog.Default(), sessions.Options{
		Logger:    slogt.New(t),
		EvictIdle: true,
	})
	require.NoError(t, r.Submit(beers("judy", 1)))
	require.ErrorIs(t, r.Wait("judy"), failure, "a failed serializer is kept until its failure is reported")

	require.NoError(t, r.Submit(beers("kate", 1)))
	require.Eventually(t, func() bool {
		return !slices.Contains(r.Users(), "kate")
	}, time.Second, time.Millisecond)
	assert.False(t, r.IsPending("kate"))

	require.NoError(t, r.Submit(beers("kate", 2)))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return written["kate"] == 2
	}, time.Second, time.Millisecond)
	require.NoError(t, r.Close())
	assert.Equal(t, 1, written["judy"])
}
