// Package tokencache holds the bearer token read by every outbound API call.
package tokencache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"properpakistan-api/pkg/logger"
)

// Persister stores the slot across process restarts.
type Persister interface {
	Load() (string, error)
	Save(token string) error
	Remove() error
}

// Cache is a single mutable token slot. Callers read it at call time, so a
// Set is visible to the next request immediately.
type Cache struct {
	mu        sync.RWMutex
	token     string
	persister Persister
}

// New returns an empty cache. When p is non-nil the previously saved token is
// loaded and every change is written through.
func New(p Persister) *Cache {
	c := &Cache{persister: p}
	if p != nil {
		token, err := p.Load()
		if err != nil {
			logger.Log.Warn("Token cache load failed", "error", err)
		}
		c.token = token
	}
	return c
}

func (c *Cache) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Cache) Present() bool {
	return c.Get() != ""
}

// Set stores token; an empty token is equivalent to Clear.
func (c *Cache) Set(token string) {
	if token == "" {
		c.Clear()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	if c.persister != nil {
		if err := c.persister.Save(token); err != nil {
			logger.Log.Warn("Token cache save failed", "error", err)
		}
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	if c.persister != nil {
		if err := c.persister.Remove(); err != nil {
			logger.Log.Warn("Token cache remove failed", "error", err)
		}
	}
}

// FilePersister keeps the token in a 0600 file.
type FilePersister struct {
	Path string
}

func NewFilePersister(dir string) *FilePersister {
	return &FilePersister{Path: filepath.Join(dir, "token")}
}

func (p *FilePersister) Load() (string, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes to a temp file and renames it so readers never see a partial token.
func (p *FilePersister) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	tempFile := p.Path + ".tmp"
	if err := os.WriteFile(tempFile, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write temp token file: %w", err)
	}
	if err := os.Rename(tempFile, p.Path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save token file: %w", err)
	}
	return nil
}

func (p *FilePersister) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
