package sqlite

import (
	"context"
	"fmt"
)

// GetConfig returns the value stored under key.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cmdq_config WHERE key = ?`, key).Scan(&v)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cmdq/sqlite: get config: %w", err)
	}
	return v, true, nil
}

// SetConfig stores value under key.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cmdq_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("cmdq/sqlite: set config: %w", err)
	}
	return nil
}

// ListConfig returns all stored settings.
func (s *Store) ListConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM cmdq_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("cmdq/sqlite: list config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("cmdq/sqlite: scan config: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cmdq/sqlite: iterate config: %w", err)
	}
	return out, nil
}
