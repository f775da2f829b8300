package mirror

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

// Watch runs SyncFile for every path received on events, once the path
// has gone quiet for the debounce period. Repeated events for a path
// within that period collapse into one sync.
//
// Watch returns ctx.Err() when ctx is done, after in-flight syncs finish.
// When events is closed, pending paths are synced immediately and Watch
// returns nil.
func (e *Engine) Watch(ctx context.Context, events <-chan string) error {
	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)

	schedule := func(p string) {
		mu.Lock()
		defer mu.Unlock()

		if t, ok := pending[p]; ok && t.Stop() {
			t.Reset(e.debounce)
			return
		}

		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(e.debounce, func() {
			defer wg.Done()
			mu.Lock()
			if pending[p] == t {
				delete(pending, p)
			}
			mu.Unlock()
			e.syncChanged(ctx, p)
		})
		pending[p] = t
	}

	// stopPending cancels every timer that has not fired yet and returns
	// their paths.
	stopPending := func() []string {
		mu.Lock()
		defer mu.Unlock()
		var paths []string
		for p, t := range pending {
			if t.Stop() {
				wg.Done()
				paths = append(paths, p)
			}
			delete(pending, p)
		}
		return paths
	}

	for {
		select {
		case <-ctx.Done():
			stopPending()
			wg.Wait()
			return ctx.Err()

		case p, ok := <-events:
			if !ok {
				for _, p := range stopPending() {
					e.syncChanged(ctx, p)
				}
				wg.Wait()
				return nil
			}
			schedule(filepath.Clean(p))
		}
	}
}

func (e *Engine) syncChanged(ctx context.Context, p string) {
	if err := e.SyncFile(ctx, p); err != nil && ctx.Err() == nil {
		e.logger.WithField("path", p).WithError(err).Warn("sync_entry_failed")
	}
}

// WatchLocal watches the local root recursively for created and written
// files and feeds them to Watch. It returns when ctx is done.
func (e *Engine) WatchLocal(ctx context.Context) error {
	c := make(chan notify.EventInfo, 128)
	if err := notify.Watch(filepath.Join(e.localRoot, "..."), c, notify.Create, notify.Write); err != nil {
		return fmt.Errorf("failed to watch %s: %w", e.localRoot, err)
	}
	defer notify.Stop(c)

	e.logger.WithField("root", e.localRoot).Info("watch_started")

	paths := make(chan string)
	go func() {
		defer close(paths)
		for {
			select {
			case <-ctx.Done():
				return
			case ei := <-c:
				select {
				case paths <- ei.Path():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	if err := e.Watch(ctx, paths); err != nil {
		return err
	}
	return ctx.Err()
}
