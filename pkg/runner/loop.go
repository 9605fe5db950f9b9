package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDuration coalesces bursts of queue file events.
const debounceDuration = 100 * time.Millisecond

// Loop runs passes until ctx is cancelled. Between passes it sleeps for the
// control interval, waking early when changes fires. Queue failures are
// logged and retried on the next pass.
func (r *Runner) Loop(ctx context.Context, changes <-chan struct{}) error {
	for {
		interval := r.defaultInterval
		sum, err := r.RunOnce(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			r.log.Warn("pass failed, retrying next interval", zap.Error(err))
		default:
			if sum.Control.IntervalSeconds > 0 {
				interval = time.Duration(sum.Control.IntervalSeconds) * time.Second
			}
			if e := sum.Err(); e != nil {
				r.log.Warn("pass finished with errors", zap.Error(e))
			}
		}

		if !r.sleep(ctx, interval, changes) {
			return nil
		}
	}
}

// sleep waits for the interval or an external change. Changes arriving within
// the settle window are the runner's own writes and are ignored. It returns
// false when ctx is done.
func (r *Runner) sleep(ctx context.Context, interval time.Duration, changes <-chan struct{}) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	quietUntil := r.now().Add(r.settle)

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if r.now().Before(quietUntil) {
				continue
			}
			r.log.Debug("queue changed, starting pass early")
			return true
		}
	}
}

// Watch is Loop driven by file system notifications on the queue database.
// If the watcher cannot be created it falls back to interval polling.
func (r *Runner) Watch(ctx context.Context, queuePath string) error {
	changes, closeFn := r.watchQueue(ctx, queuePath)
	defer closeFn()
	return r.Loop(ctx, changes)
}

// watchQueue emits a debounced signal whenever the queue file or its
// journal changes. A nil channel means polling only.
func (r *Runner) watchQueue(ctx context.Context, queuePath string) (<-chan struct{}, func()) {
	dir := filepath.Dir(queuePath)
	base := filepath.Base(queuePath)

	if _, err := os.Stat(dir); err != nil {
		r.log.Warn("queue directory missing, falling back to polling", zap.String("dir", dir), zap.Error(err))
		return nil, func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.log.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
		return nil, func() {}
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		r.log.Warn("cannot watch queue directory, falling back to polling", zap.String("dir", dir), zap.Error(err))
		return nil, func() {}
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		debounce := time.NewTimer(debounceDuration)
		if !debounce.Stop() {
			<-debounce.C
		}
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				// queue.db, queue.db-wal, queue.db-journal
				if !strings.HasPrefix(filepath.Base(ev.Name), base) {
					continue
				}
				debounce.Reset(debounceDuration)
			case <-debounce.C:
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Warn("fsnotify watcher error", zap.Error(err))
			}
		}
	}()

	return out, func() {
		_ = watcher.Close()
		<-done
	}
}
