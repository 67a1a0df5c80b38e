package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/xraph/cmdq"
)

// check runs SQLite's quick integrity check.
func (s *Store) check(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return fmt.Errorf("cmdq/sqlite: integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("cmdq/sqlite: %w: %s", cmdq.ErrCorruptStore, result)
	}
	return nil
}

// isCorrupt reports whether err means the file is not a usable database.
func isCorrupt(err error) bool {
	if errors.Is(err, cmdq.ErrCorruptStore) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrNotADB || se.Code == sqlite3.ErrCorrupt
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

// moveAside renames a corrupt database (and its WAL side files) out of the
// way and returns the new name.
func moveAside(path string) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, dst); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return dst, err
		}
	}
	return dst, nil
}
