package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/logging"
)

// DefaultPath resolves the settings file location: MCPHUB_SETTING_PATH, or
// ./mcp_settings.json.
func DefaultPath() string {
	if p := os.Getenv("MCPHUB_SETTING_PATH"); p != "" {
		return p
	}
	return "mcp_settings.json"
}

// Store is the authoritative in-memory view of the settings document plus
// its atomic on-disk persistence, as a cached, swappable snapshot under a
// single writer lock. Callers that need the latest document (the ingress
// router, the session manager) call Load on every request rather than
// subscribing to push notifications; only the connector pool's own
// tool-list changes (pool.Pool.OnChange) are broadcast.
type Store struct {
	path   string
	logger *logging.Logger

	mu     sync.RWMutex
	cached *Document
}

// NewStore creates a store bound to path (DefaultPath() if empty).
func NewStore(path string, logger *logging.Logger) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the file this store reads/writes.
func (s *Store) Path() string { return s.path }

// Load returns the cached document, reading and parsing the file on first
// call (or after ClearCache). A corrupted or missing file never fails the
// caller: it is treated as Empty() and the error is logged.
func (s *Store) Load() *Document {
	s.mu.RLock()
	if s.cached != nil {
		d := s.cached
		s.mu.RUnlock()
		return d
	}
	s.mu.RUnlock()

	doc, err := s.readFromDisk()
	if err != nil {
		s.emit(common.NewEvent(common.EventSystem, common.DirectionInternal).
			WithError(common.NewUpstreamError(common.KindConfig, "", "settings load failed, using empty document", err)))
		doc = Empty()
	}

	s.mu.Lock()
	s.cached = doc
	s.mu.Unlock()

	return doc
}

func (s *Store) readFromDisk() (*Document, error) {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if len(data) == 0 {
		return Empty(), nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if doc.MCPServers == nil {
		doc.MCPServers = map[string]*ServerConfig{}
	}
	if doc.UserConfigs == nil {
		doc.UserConfigs = map[string]UserConfig{}
	}
	return &doc, nil
}

// Save writes doc as the whole document and atomically rewrites the file
// (write-temp-then-rename), then swaps the cache. doc replaces the cached
// document; no merge with the cached copy is done. asUser is recorded for
// audit logging only.
func (s *Store) Save(doc *Document, asUser string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".mcp_settings-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp settings file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	s.mu.Lock()
	s.cached = doc
	s.mu.Unlock()

	s.emit(common.NewEvent(common.EventAdmin, common.DirectionInternal).
		WithMetadata("user", asUser))

	return nil
}

// ClearCache forces the next Load to re-read from disk.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) emit(e *common.Event) {
	if s.logger != nil {
		s.logger.Emit(e)
	}
}
