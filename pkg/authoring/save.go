package authoring

import (
	"context"
	"time"
)

// scheduleSave queues a debounced save of the active rule set. Edits made
// before Load completes are published but never saved.
func (e *Editor) scheduleSave() {
	if e.persister == nil || !e.initialized.Load() {
		return
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if e.closed {
		return
	}
	e.pending = true
	if e.timer == nil {
		e.timer = time.AfterFunc(e.debounce, e.saveNow)
		return
	}
	e.timer.Reset(e.debounce)
}

// saveNow is the debounce timer callback.
func (e *Editor) saveNow() {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		e.log.Warn("failed to save rules", "error", err)
	}
}

// Flush saves the active rule set now if an edit is waiting to be saved.
func (e *Editor) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.saveMu.Lock()
	if !e.pending {
		e.saveMu.Unlock()
		return nil
	}
	e.pending = false
	e.saveMu.Unlock()

	rules := e.rules.Snapshot()
	if err := e.persister.Save(ctx, rules); err != nil {
		e.saveMu.Lock()
		e.pending = true
		e.saveMu.Unlock()
		return err
	}
	e.log.Debug("saved rules", "count", len(rules))
	return nil
}

// Close stops the debounce timer and saves any waiting edit. Later edits are
// still published but no longer saved.
func (e *Editor) Close(ctx context.Context) error {
	e.saveMu.Lock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.saveMu.Unlock()
	return e.Flush(ctx)
}
