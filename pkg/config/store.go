package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rhuss/streamgate/pkg/debug"
	"github.com/rhuss/streamgate/pkg/observability"
	"github.com/rhuss/streamgate/pkg/provider"
)

const defaultDebounce = 100 * time.Millisecond

// Store holds the active configuration. Readers always see a complete
// Config; a reload swaps it atomically and then notifies subscribers.
type Store struct {
	path     string
	debounce time.Duration
	current  atomic.Pointer[Config]

	mu          sync.Mutex
	subscribers []func(old, new *Config)
}

// NewStore creates a store serving cfg. path is the file Reload and Watch
// read; it may be empty when the config came from defaults and env only.
func NewStore(cfg *Config, path string) *Store {
	s := &Store{path: path, debounce: defaultDebounce}
	s.current.Store(cfg)
	return s
}

// Get returns the active configuration. Callers must not modify it.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Path returns the watched config file path.
func (s *Store) Path() string {
	return s.path
}

// Subscribe registers fn to run after every effective configuration change.
func (s *Store) Subscribe(fn func(old, new *Config)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Set replaces the active configuration and notifies subscribers when it
// differs from the previous one. It reports whether anything changed.
func (s *Store) Set(cfg *Config) bool {
	old := s.current.Swap(cfg)
	if reflect.DeepEqual(old, cfg) {
		return false
	}

	s.mu.Lock()
	subs := make([]func(old, new *Config), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("config subscriber panicked", "panic", r)
				}
			}()
			fn(old, cfg)
		}()
	}
	return true
}

// Reload re-reads the config file. On failure the active configuration is
// kept and the error returned.
func (s *Store) Reload() error {
	if s.path == "" {
		return errors.New("config: no config file to reload")
	}

	cfg, err := Load(s.path)
	if err != nil {
		observability.ConfigReloadsTotal.WithLabelValues("error").Inc()
		return err
	}

	if s.Set(cfg) {
		observability.ConfigReloadsTotal.WithLabelValues("applied").Inc()
		slog.Info("configuration reloaded", "path", s.path)
	} else {
		observability.ConfigReloadsTotal.WithLabelValues("unchanged").Inc()
		debug.Log(debug.Config, "configuration unchanged", "path", s.path)
	}
	return nil
}

// Watch reloads the configuration whenever the config file changes, until
// ctx is done. The file's directory is watched so that editors replacing
// the file by rename are picked up too.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("config: no config file to watch")
	}

	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", s.path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	go s.watch(ctx, w, target)
	return nil
}

func (s *Store) watch(ctx context.Context, w *fsnotify.Watcher, target string) {
	defer w.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debug.Log(debug.Config, "config file event", "op", ev.Op.String(), "path", ev.Name)

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := s.Reload(); err != nil {
					slog.Warn("config reload failed, keeping previous configuration",
						"path", s.path, "error", err)
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

// Resolve implements provider.Resolver against the active configuration.
func (s *Store) Resolve(_ context.Context, id string) (provider.ProviderConfig, error) {
	return s.Get().ResolveProvider(id)
}

// ConcurrencyLimit returns the configured batch concurrency limit,
// unclamped. It is the read function behind the queue's limit cache.
func (s *Store) ConcurrencyLimit() int {
	return s.Get().Gateway.ConcurrencyLimit
}
