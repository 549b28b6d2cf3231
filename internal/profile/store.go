package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tag-bridge/internal/entity"
)

// Store persists the preference profile as a single JSON file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the profile. A missing file yields an empty profile and
// fs.ErrNotExist so callers can warn and carry on.
func (s *Store) Load() (entity.PreferenceProfile, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entity.EmptyProfile(), err
		}
		return entity.EmptyProfile(), fmt.Errorf("read profile: %w", err)
	}

	p := entity.EmptyProfile()
	if err := json.Unmarshal(b, &p); err != nil {
		return entity.EmptyProfile(), fmt.Errorf("decode profile %s: %w", s.path, err)
	}
	return p, nil
}

// Save replaces the profile file atomically.
func (s *Store) Save(p entity.PreferenceProfile) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.json")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp profile: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}
