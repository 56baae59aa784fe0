// Package file persists rule sets to a JSON or YAML rule file.
//
// Writes are atomic (temporary file plus rename) so a crash never leaves a
// half-written rule file behind. Save writes immediately; Schedule coalesces
// bursts of edits into a single write after a short debounce.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/store"
)

// DefaultSaveDebounce is the quiet period Schedule waits before writing.
const DefaultSaveDebounce = 500 * time.Millisecond

// Format is the encoding of a rule file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension. Anything other
// than .yaml or .yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Store reads and writes a single rule file. It implements store.Persister.
type Store struct {
	path         string
	format       Format
	readOnly     bool
	saveDebounce time.Duration
	log          *slog.Logger

	writeMu     sync.Mutex
	lastWritten []byte // guarded by writeMu

	pending   atomic.Pointer[[]*mock.Rule]
	saveCh    chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	closedCh  chan struct{} // closed when saveLoop has exited
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSaveDebounce sets the quiet period used by Schedule.
func WithSaveDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.saveDebounce = d
		}
	}
}

// WithReadOnly rejects every write with store.ErrReadOnly.
func WithReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// WithFormat overrides the encoding inferred from the file extension.
func WithFormat(f Format) Option {
	return func(s *Store) { s.format = f }
}

// New creates a Store for path and starts its debounced save loop.
// Call Close to flush scheduled writes and stop the loop.
func New(path string, opts ...Option) *Store {
	if path == "" {
		path = store.DefaultRulesFile
	}
	s := &Store{
		path:         filepath.Clean(path),
		format:       FormatFromPath(path),
		saveDebounce: DefaultSaveDebounce,
		log:          logging.Nop(),
		saveCh:       make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
		closedCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.saveLoop()
	return s
}

// Path returns the rule file path.
func (s *Store) Path() string {
	return s.path
}

// Format returns the rule file encoding.
func (s *Store) Format() Format {
	return s.format
}

// Load reads and validates the rule file. A missing file yields an empty slice.
func (s *Store) Load(ctx context.Context) ([]*mock.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*mock.Rule{}, nil
		}
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	rules, err := s.decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.path, err)
	}
	return rules, nil
}

// ReadRaw returns the rule set as a JSON array, or [] when the file does not
// exist. JSON files are returned byte for byte.
func (s *Store) ReadRaw(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []byte("[]"), nil
		}
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	if s.format == FormatJSON {
		if len(bytes.TrimSpace(data)) == 0 {
			return []byte("[]"), nil
		}
		return data, nil
	}
	rules, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rules)
}

// Save validates rules and writes them to the rule file.
func (s *Store) Save(ctx context.Context, rules []*mock.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mock.ValidateAll(rules); err != nil {
		return err
	}
	data, err := s.encode(rules)
	if err != nil {
		return err
	}
	return s.write(data)
}

// SaveRaw validates a JSON rule set and writes it. For JSON files the body is
// stored as given; YAML files receive the re-encoded rules.
func (s *Store) SaveRaw(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rules, err := mock.ParseRuleSet(body)
	if err != nil {
		return err
	}
	if err := mock.ValidateAll(rules); err != nil {
		return err
	}
	if s.format == FormatJSON && len(bytes.TrimSpace(body)) > 0 {
		return s.write(body)
	}
	data, err := s.encode(rules)
	if err != nil {
		return err
	}
	return s.write(data)
}

// Schedule queues rules for a debounced write. Each call replaces the queued
// set; only the latest is written once edits go quiet.
func (s *Store) Schedule(rules []*mock.Rule) error {
	select {
	case <-s.closeCh:
		return store.ErrClosed
	default:
	}
	snapshot := mock.CloneAll(rules)
	s.pending.Store(&snapshot)

	// Non-blocking send to trigger save
	select {
	case s.saveCh <- struct{}{}:
	default:
		// Channel full, save already pending
	}
	return nil
}

// Flush writes any scheduled rules immediately.
func (s *Store) Flush() error {
	p := s.pending.Swap(nil)
	if p == nil {
		return nil
	}
	return s.Save(context.Background(), *p)
}

// Close writes scheduled rules and stops the save loop. Safe to call multiple times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	<-s.closedCh
	return nil
}

// saveLoop debounces Schedule calls to prevent excessive disk writes.
func (s *Store) saveLoop() {
	defer close(s.closedCh)
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-s.saveCh:
			if timer == nil {
				timer = time.NewTimer(s.saveDebounce)
			} else {
				timer.Reset(s.saveDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := s.Flush(); err != nil {
				s.log.Error("failed to save rule file", "path", s.path, "error", err)
			}
		case <-s.closeCh:
			if timer != nil {
				timer.Stop()
			}
			if err := s.Flush(); err != nil {
				s.log.Error("failed to save rule file on close", "path", s.path, "error", err)
			}
			return
		}
	}
}

func (s *Store) decode(data []byte) ([]*mock.Rule, error) {
	if s.format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", mock.ErrInvalidRule, err)
		}
		if doc == nil {
			return []*mock.Rule{}, nil
		}
		asJSON, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", mock.ErrInvalidRule, err)
		}
		data = asJSON
	}
	rules, err := mock.ParseRuleSet(data)
	if err != nil {
		return nil, err
	}
	if err := mock.ValidateAll(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) encode(rules []*mock.Rule) ([]byte, error) {
	if rules == nil {
		rules = []*mock.Rule{}
	}
	if s.format == FormatYAML {
		data, err := yaml.Marshal(rules)
		if err != nil {
			return nil, fmt.Errorf("encoding rules: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding rules: %w", err)
	}
	return append(data, '\n'), nil
}

// write replaces the rule file atomically: temp file, then rename.
func (s *Store) write(data []byte) error {
	if s.readOnly {
		return store.ErrReadOnly
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating rule directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("setting rule file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName) // Clean up temp file on failure
		return fmt.Errorf("replacing rule file: %w", err)
	}

	s.lastWritten = bytes.Clone(data)
	s.log.Debug("rule file saved", "path", s.path, "bytes", len(data))
	return nil
}

// wroteLast reports whether data equals the most recent write by this Store.
func (s *Store) wroteLast(data []byte) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.lastWritten != nil && bytes.Equal(s.lastWritten, data)
}

var _ store.Persister = (*Store)(nil)
