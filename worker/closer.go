// Package worker runs background jobs. The only job today closes approved
// requests whose components were never collected.
package worker

import (
	"context"
	"time"

	"lab_lending_tool/db"

	"go.uber.org/zap"
)

// StaleCloser is the part of db.Repo the sweep needs.
type StaleCloser interface {
	StaleRequestIDs(ctx context.Context, cutoff time.Time) ([]string, error)
	CloseIfStale(ctx context.Context, id string, window time.Duration, actor db.Actor, now time.Time) (bool, error)
}

// Locker keeps concurrent instances from sweeping at the same time.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Closer struct {
	repo   StaleCloser
	lock   Locker
	window time.Duration
	every  time.Duration
	now    func() time.Time

	// OnClosed 有申请被关闭后调用，用来清看板缓存
	OnClosed func(ctx context.Context, n int)
}

func NewCloser(repo StaleCloser, lock Locker, window, every time.Duration) *Closer {
	return &Closer{repo: repo, lock: lock, window: window, every: every, now: time.Now}
}

// Sweep closes every stale request once and returns how many were closed.
// It returns 0 without error when another instance holds the lock.
func (w *Closer) Sweep(ctx context.Context) (int, error) {
	if w.lock != nil {
		ok, err := w.lock.TryAcquire(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := w.lock.Release(context.Background()); err != nil {
				zap.L().Warn("release sweep lock failed", zap.Error(err))
			}
		}()
	}

	now := w.now()
	ids, err := w.repo.StaleRequestIDs(ctx, now.Add(-w.window))
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		ok, err := w.repo.CloseIfStale(ctx, id, w.window, db.SystemActor, now)
		if err != nil {
			// 单条失败不影响其余
			zap.L().Error("close stale request failed", zap.String("request_id", id), zap.Error(err))
			continue
		}
		if ok {
			closed++
			zap.L().Info("request closed: not collected in time", zap.String("request_id", id))
		}
	}
	if closed > 0 && w.OnClosed != nil {
		w.OnClosed(ctx, closed)
	}
	return closed, ctx.Err()
}

// Run sweeps immediately and then every interval until ctx is done.
func (w *Closer) Run(ctx context.Context) {
	every := w.every
	if every <= 0 {
		every = 10 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			zap.L().Error("collection sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
