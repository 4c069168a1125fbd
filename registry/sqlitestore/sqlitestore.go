// Package sqlitestore persists the registry in a local SQLite database. Useful
// when several checks on one host want their state in one inspectable place.
package sqlitestore

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/queuewatch/queuewatch/models"
)

type SQLiteStore struct {
	Filename string
	DB       *sqlx.DB
}

type stateRow struct {
	Name           string `db:"name"`
	LastDecreaseAt int64  `db:"last_decrease_at"`
	LastValue      int64  `db:"last_value"`
	LastSeenAt     int64  `db:"last_seen_at"`
}

func New(path string) (*SQLiteStore, error) {
	newDb := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		newDb = true
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRegistryLoad, err)
	}

	if newDb {
		_, err = db.Exec(`
		CREATE TABLE queue_state
		(
			name string primary key not null,
			last_decrease_at integer not null,
			last_value integer not null,
			last_seen_at integer not null default 0
		)
		`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", models.ErrRegistryLoad, err)
		}
	}

	return &SQLiteStore{Filename: path, DB: db}, nil
}

func (s *SQLiteStore) Load() (models.Registry, error) {
	var rows []stateRow
	err := s.DB.Select(&rows, "SELECT name, last_decrease_at, last_value, last_seen_at FROM queue_state")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrRegistryLoad, s.Filename, err)
	}

	registry := make(models.Registry, len(rows))
	for _, row := range rows {
		state := models.QueueState{
			LastDecreaseAt: time.Unix(row.LastDecreaseAt, 0).UTC(),
			LastValue:      row.LastValue,
		}
		if row.LastSeenAt > 0 {
			state.LastSeenAt = time.Unix(row.LastSeenAt, 0).UTC()
		}
		registry[row.Name] = state
	}

	return registry, nil
}

func (s *SQLiteStore) Save(registry models.Registry) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}

	defer tx.Rollback()

	// The registry is small; rewriting it wholesale keeps Save equivalent to
	// the file store's replace-the-file semantics.
	if _, err := tx.Exec("DELETE FROM queue_state"); err != nil {
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}

	for name, state := range registry {
		var lastSeen int64
		if !state.LastSeenAt.IsZero() {
			lastSeen = state.LastSeenAt.UTC().Unix()
		}
		_, err := tx.Exec(
			"INSERT INTO queue_state (name, last_decrease_at, last_value, last_seen_at) VALUES (?,?,?,?)",
			name, state.LastDecreaseAt.UTC().Unix(), state.LastValue, lastSeen,
		)
		if err != nil {
			return fmt.Errorf("%w: queue %q: %v", models.ErrRegistryWrite, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrRegistryWrite, err)
	}

	log.Debug().Str("path", s.Filename).Int("queues", len(registry)).Msg("Saved registry")
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}
