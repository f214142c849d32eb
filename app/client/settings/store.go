// Package settings persists the small key-value state that must survive
// restarts: OAuth tokens, the GraphQL session token and the integrity cache.
package settings

import (
	"bytes"
	"fmt"
	"k4llisto/pkg/config"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/do"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

const (
	KeyAccessToken  = "auth/access_token"
	KeyRefreshToken = "auth/refresh_token"
	KeyGraphQLToken = "auth/graphql_token"

	KeyIntegrityToken      = "integrity/token"
	KeyIntegrityExpiration = "integrity/expiration"
	KeyIntegrityDeviceID   = "integrity/device_id"
)

// Store is a section/key string store backed by an ini file. Absent keys
// read as empty strings; every write is synced to disk.
type Store struct {
	fs   afero.Fs
	path string

	mu   sync.Mutex
	file *ini.File
}

func New(di *do.Injector) (*Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewWithFs(afero.NewOsFs(), cfg.Settings.Path)
}

func NewWithFs(fs afero.Fs, path string) (*Store, error) {
	store := &Store{fs: fs, path: path}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		store.file = ini.Empty()
		return store, nil
	}

	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	store.file = file
	return store, nil
}

// Get returns the stored value, or "" if the key was never set.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	section, name := splitKey(key)
	if !s.file.Section(section).HasKey(name) {
		return ""
	}

	return s.file.Section(section).Key(name).String()
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	section, name := splitKey(key)
	s.file.Section(section).Key(name).SetValue(value)

	return s.syncLocked()
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	section, name := splitKey(key)
	s.file.Section(section).DeleteKey(name)

	return s.syncLocked()
}

func (s *Store) syncLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create settings dir: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.file.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	if err := afero.WriteFile(s.fs, s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

func splitKey(key string) (section, name string) {
	if idx := strings.IndexByte(key, '/'); idx >= 0 {
		return key[:idx], key[idx+1:]
	}

	return ini.DefaultSection, key
}
