// Package filestore persists the registry as a single JSON file. Saves go
// through a temp file in the same directory plus a rename, so a crash mid-save
// leaves the previous registry intact.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/queuewatch/queuewatch/models"
)

type FileStore struct {
	Path string
}

func New(path string) *FileStore {
	return &FileStore{Path: path}
}

// entry is the on-disk shape. Timestamps are RFC3339 strings, second
// precision, so the file stays readable and round-trips exactly.
type entry struct {
	LastDecreaseAt string `json:"last_decrease_at"`
	LastValue      int64  `json:"last_value"`
	LastSeenAt     string `json:"last_seen_at,omitempty"`
}

func (s *FileStore) Load() (models.Registry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Registry{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrRegistryLoad, s.Path, err)
	}

	raw := make(map[string]entry)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrRegistryLoad, s.Path, err)
	}

	registry := make(models.Registry, len(raw))
	for name, e := range raw {
		decreasedAt, err := time.Parse(time.RFC3339, e.LastDecreaseAt)
		if err != nil {
			return nil, fmt.Errorf("%w: queue %q: %v", models.ErrRegistryLoad, name, err)
		}
		state := models.QueueState{
			LastDecreaseAt: decreasedAt,
			LastValue:      e.LastValue,
		}
		if e.LastSeenAt != "" {
			seenAt, err := time.Parse(time.RFC3339, e.LastSeenAt)
			if err != nil {
				return nil, fmt.Errorf("%w: queue %q: %v", models.ErrRegistryLoad, name, err)
			}
			state.LastSeenAt = seenAt
		}
		registry[name] = state
	}

	return registry, nil
}

func (s *FileStore) Save(registry models.Registry) error {
	raw := make(map[string]entry, len(registry))
	for name, state := range registry {
		e := entry{
			LastDecreaseAt: state.LastDecreaseAt.UTC().Truncate(time.Second).Format(time.RFC3339),
			LastValue:      state.LastValue,
		}
		if !state.LastSeenAt.IsZero() {
			e.LastSeenAt = state.LastSeenAt.UTC().Truncate(time.Second).Format(time.RFC3339)
		}
		raw[name] = e
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}

	log.Debug().Str("path", s.Path).Int("queues", len(registry)).Msg("Saved registry")
	return nil
}
