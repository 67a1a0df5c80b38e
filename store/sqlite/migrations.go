package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/cmdq"
)

// migration is one schema step, applied when PRAGMA user_version is below
// its version.
type migration struct {
	version    int
	name       string
	statements []string
}

// migrations lists the schema history in order.
var migrations = []migration{
	{
		version: 1,
		name:    "create_jobs_and_config",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS cmdq_jobs (
				id          TEXT PRIMARY KEY,
				command     TEXT NOT NULL,
				state       TEXT NOT NULL DEFAULT 'pending',
				attempts    INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				last_error  TEXT,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cmdq_jobs_claim
				ON cmdq_jobs (state, created_at, id)`,
			`CREATE TABLE IF NOT EXISTS cmdq_config (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
}

// Migrate applies every migration newer than the database's user_version.
func (s *Store) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("cmdq/sqlite: read schema version: %w: %w", cmdq.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("cmdq/sqlite: migration %d %s: %w: %w", m.version, m.name, cmdq.ErrMigrationFailed, err)
		}
		s.logger.Debug("applied migration",
			slog.Int("version", m.version),
			slog.String("name", m.name),
		)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, m.version)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
