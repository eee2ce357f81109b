package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LoadConfig returns the config blob and its monotonic version, or version 0
// when no config has been saved yet.
func (s *Store) LoadConfig(ctx context.Context) (payload string, version int64, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, version FROM config WHERE id = 1`)
	err = row.Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("store: load config: %w", err)
	}
	return payload, version, nil
}

// SaveConfig stores the blob and bumps the version, invalidating every
// versioned cache on its next read.
func (s *Store) SaveConfig(ctx context.Context, payload string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (id, version, payload) VALUES (1, 1, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = config.version + 1,
			payload = excluded.payload`, payload)
	if err != nil {
		return 0, fmt.Errorf("store: save config: %w", err)
	}
	var version int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT version FROM config WHERE id = 1`).Scan(&version); err != nil {
		return 0, fmt.Errorf("store: save config readback: %w", err)
	}
	return version, nil
}
