package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// DefaultName is the speaker name written when the settings file has none.
const DefaultName = "SPEAKER"

// NameKey is the settings key holding the advertised speaker name.
const NameKey = "name"

// Settings is a flat key=value file persisted across restarts.
type Settings struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// OpenSettings reads the file at path. A missing file is treated as empty
// and created on the first Set.
func OpenSettings(path string) (*Settings, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
		values = make(map[string]string)
	}
	return &Settings{path: path, values: values}, nil
}

func (s *Settings) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *Settings) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key and rewrites the file.
func (s *Settings) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := godotenv.Write(s.values, s.path); err != nil {
		return fmt.Errorf("write settings %s: %w", s.path, err)
	}
	return nil
}

// DisplayName returns the stored speaker name. When none is stored the
// default is written back and returned.
func (s *Settings) DisplayName() (string, error) {
	if name, ok := s.Get(NameKey); ok && name != "" {
		return name, nil
	}
	if err := s.Set(NameKey, DefaultName); err != nil {
		return DefaultName, err
	}
	return DefaultName, nil
}
