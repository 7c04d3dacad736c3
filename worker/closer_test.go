package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lab_lending_tool/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu     sync.Mutex
	ids    []string
	closed map[string]bool
	failOn string
	cutoff time.Time
	actor  db.Actor
}

func (f *fakeRepo) StaleRequestIDs(_ context.Context, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	return f.ids, nil
}

func (f *fakeRepo) CloseIfStale(_ context.Context, id string, _ time.Duration, actor db.Actor, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actor = actor
	if id == f.failOn {
		return false, errors.New("boom")
	}
	if f.closed[id] {
		return false, nil
	}
	f.closed[id] = true
	return true, nil
}

type fakeLock struct {
	free     bool
	released int
}

func (l *fakeLock) TryAcquire(context.Context) (bool, error) { return l.free, nil }
func (l *fakeLock) Release(context.Context) error            { l.released++; return nil }

func TestSweepClosesStale(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{ids: []string{"a", "b", "c"}, closed: map[string]bool{"b": true}, failOn: "c"}
	lock := &fakeLock{free: true}
	w := NewCloser(repo, lock, 48*time.Hour, time.Minute)
	w.now = func() time.Time { return now }
	var notified int
	w.OnClosed = func(_ context.Context, n int) { notified = n }

	n, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, notified)
	assert.Equal(t, now.Add(-48*time.Hour), repo.cutoff)
	assert.Equal(t, db.SystemActor, repo.actor)
	assert.Equal(t, 1, lock.released)
}

func TestSweepSkipsWhenLocked(t *testing.T) {
	repo := &fakeRepo{ids: []string{"a"}, closed: map[string]bool{}}
	w := NewCloser(repo, &fakeLock{free: false}, time.Hour, time.Minute)

	n, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.closed)
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := &fakeRepo{ids: []string{"a"}, closed: map[string]bool{}}
	w := NewCloser(repo, nil, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.closed["a"]
	}, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
