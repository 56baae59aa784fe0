package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/getmockd/pocketmock/pkg/mock"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 100 * time.Millisecond

// Watch calls onChange with the reloaded rules whenever the rule file is
// changed by another writer. Writes made through this Store are ignored, as
// are files that fail validation (logged). Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself so that
// atomic replace-by-rename from editors and from Save is observed.
func (s *Store) Watch(ctx context.Context, onChange func([]*mock.Rule)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	s.log.Info("watching rule file", "path", s.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			s.reload(ctx, onChange)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("rule file watcher error", "error", err)
		}
	}
}

func (s *Store) reload(ctx context.Context, onChange func([]*mock.Rule)) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to read changed rule file", "path", s.path, "error", err)
		}
		return
	}
	if s.wroteLast(data) {
		return
	}
	rules, err := s.decode(data)
	if err != nil {
		s.log.Warn("ignoring invalid rule file change", "path", s.path, "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.log.Info("rule file changed", "path", s.path, "rules", len(rules))
	onChange(rules)
}
