/*
PURPOSE:
  Re-runs a callback whenever a result CSV is rewritten (report --watch).

REQUIREMENTS:
  Implementation-discovered:
  - The store replaces the file by rename, so the directory is watched.
  - One persist produces several events; they are debounced.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (report)

ERROR HANDLING:
  - Callback and watcher errors are logged; only setup errors are returned.
*/

package report

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/daryltucker/packbench/internal/output"
)

// DebounceDelay coalesces the burst of events a single persist produces.
var DebounceDelay = 250 * time.Millisecond

// Watch calls fn every time csvPath is rewritten, until ctx is done.
// The directory is watched rather than the file: the result store replaces
// the file by rename, which would drop a watch on the old inode.
func Watch(ctx context.Context, csvPath string, fn func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(csvPath)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(csvPath)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(DebounceDelay)
			} else {
				timer.Reset(DebounceDelay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := fn(); err != nil {
				output.Logger.Error("Watch callback failed", "path", csvPath, "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			output.Logger.Warn("Watcher error", "error", err)
		}
	}
}
