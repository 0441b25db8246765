// Package localstore is the durable key/value adapter backing the session
// repository. Each key maps to one JSON file under the storage directory;
// writes from a sibling process surface as change notifications, the same
// role the browser storage event plays for a second tab.
package localstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/sorafy/sorafy-agent/internal/observability"
)

type Store struct {
	dir string

	mu         sync.Mutex
	subs       []func(key string, raw []byte, ok bool)
	selfWrites map[string]int // filename -> pending watcher events to swallow

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open prepares the storage directory and starts watching it for external
// changes.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating storage watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching storage dir: %w", err)
	}

	s := &Store{
		dir:        dir,
		selfWrites: make(map[string]int),
		watcher:    watcher,
		done:       make(chan struct{}),
	}
	go s.watchLoop()
	return s, nil
}

func (s *Store) Close() error {
	close(s.done)
	return s.watcher.Close()
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, filename(key))
}

func filename(key string) string {
	// Keys are fixed well-known names, but keep them filesystem-safe anyway.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return safe + ".json"
}

func keyFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	return strings.TrimSuffix(name, ".json"), true
}

// Get decodes the value stored under key into out. A missing or corrupt file
// yields false so the caller keeps its default.
func (s *Store) Get(key string, out any) bool {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			observability.Logger().Warn("storage read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		observability.Logger().Warn("storage value corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// Set durably stores the JSON encoding of v under key. The write is atomic:
// temp file in the same directory, fsync, rename.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding value for %q: %w", key, err)
	}

	s.mu.Lock()
	// A rename produces one Create event; swallow it so our own writes do
	// not echo back as external changes.
	s.selfWrites[filename(key)]++
	s.mu.Unlock()

	if err := atomicWriteFile(s.path(key), data, 0o644); err != nil {
		s.mu.Lock()
		if s.selfWrites[filename(key)] > 0 {
			s.selfWrites[filename(key)]--
		}
		s.mu.Unlock()
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

// Subscribe registers fn for changes performed by external actors.
func (s *Store) Subscribe(fn func(key string, raw []byte, ok bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			observability.Logger().Warn("storage watcher error", "error", err)
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	key, ok := keyFromFilename(name)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.selfWrites[name] > 0 {
		s.selfWrites[name]--
		s.mu.Unlock()
		return
	}
	subs := append(([]func(string, []byte, bool))(nil), s.subs...)
	s.mu.Unlock()

	raw, err := os.ReadFile(event.Name)
	present := err == nil
	if !present {
		raw = nil
	}
	for _, fn := range subs {
		fn(key, raw, present)
	}
}
