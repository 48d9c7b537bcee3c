// Package sessionstate persists browser cookies and local storage between runs.
// The file layout matches Playwright's storageState JSON so the same file can
// be handed to either browser backend.
package sessionstate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// Cookie is a single persisted cookie. Expires is seconds since the epoch, -1
// for session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// NameValue is one localStorage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin groups the localStorage entries of one origin.
type Origin struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// State is the serialized browser state.
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Empty reports whether the state carries nothing worth restoring.
func (s *State) Empty() bool {
	return s == nil || (len(s.Cookies) == 0 && len(s.Origins) == 0)
}

// Store reads and writes the state file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore returns a store for path, expanding a leading "~".
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("session state path is empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand session state path %q: %w", path, err)
	}
	return &Store{path: expanded, logger: logger.Named("sessionstate")}, nil
}

// Path is the expanded file location.
func (s *Store) Path() string { return s.path }

// Load reads the state file. A missing file is not an error and yields nil.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("No saved browser state; a fresh login will be required", zap.String("path", s.path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode session state %s: %w", s.path, err)
	}
	s.logger.Info("Loaded saved browser state",
		zap.String("path", s.path),
		zap.Int("cookies", len(st.Cookies)),
		zap.Int("origins", len(st.Origins)),
	)
	return &st, nil
}

// Save writes the state file atomically with owner-only permissions.
func (s *Store) Save(st *State) error {
	if st == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session state directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".browser-state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to move session state into place: %w", err)
	}
	s.logger.Info("Saved browser state", zap.String("path", s.path), zap.Int("cookies", len(st.Cookies)))
	return nil
}
