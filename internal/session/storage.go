package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"properpakistan-api/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Storage persists the session between process runs.
type Storage interface {
	Load() (*Session, error)
	Save(s *Session) error
	Remove() error
}

// Watcher is implemented by storages that can report changes made by other
// processes.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

const sessionFileName = "session.json"

// FileStorage keeps the session as JSON in a 0600 file inside dir.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (f *FileStorage) Path() string {
	return filepath.Join(f.dir, sessionFileName)
}

func (f *FileStorage) Load() (*Session, error) {
	data, err := os.ReadFile(f.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	if !s.Valid() {
		return nil, nil
	}
	return &s, nil
}

// Save writes atomically: temp file, fsync, rename.
func (f *FileStorage) Save(s *Session) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tempFile := f.Path() + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer func() {
		file.Close()
		os.Remove(tempFile) // Clean up on error
	}()

	if err := file.Chmod(0600); err != nil && runtime.GOOS != "windows" {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempFile, f.Path()); err != nil {
		return fmt.Errorf("failed to save session file: %w", err)
	}
	return nil
}

func (f *FileStorage) Remove() error {
	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the session file is created, replaced or
// removed. The directory is watched because Save replaces the file by rename.
func (f *FileStorage) Watch(ctx context.Context, onChange func()) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != sessionFileName {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Log.Warn("Session watcher error", "error", err)
			}
		}
	}()
	return nil
}

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu      sync.Mutex
	session *Session
}

func (m *MemoryStorage) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStorage) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.session = &cp
	return nil
}

func (m *MemoryStorage) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
