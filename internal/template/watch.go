package template

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"theiacloud/pkg/logging"
)

const defaultDebounceInterval = 500 * time.Millisecond

// Watch reloads the templates whenever a file in the override directory
// changes. It blocks until ctx is cancelled. Without an override directory
// it returns immediately.
func (r *Renderer) Watch(ctx context.Context) error {
	return r.watch(ctx, defaultDebounceInterval)
}

func (r *Renderer) watch(ctx context.Context, debounce time.Duration) error {
	if r.overrideDir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.overrideDir); err != nil {
		return fmt.Errorf("failed to watch template directory %s: %w", r.overrideDir, err)
	}
	logging.Info("Templates", "Watching %s for template changes", r.overrideDir)

	var (
		mu      sync.Mutex
		pending *time.Timer
	)
	defer func() {
		mu.Lock()
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isTemplateFile(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Editors write files in bursts; reload once the burst settles.
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				if err := r.Reload(); err != nil {
					logging.Error("Templates", err, "Failed to reload templates, keeping the previous set")
					return
				}
				logging.Info("Templates", "Reloaded templates after change of %s", event.Name)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Templates", err, "Template watcher error")
		}
	}
}
