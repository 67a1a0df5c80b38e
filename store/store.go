package store

import (
	"context"

	"github.com/xraph/cmdq/config"
	"github.com/xraph/cmdq/job"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store.
type Store interface {
	job.Store
	config.Store

	// Migrate creates or upgrades the schema.
	Migrate(ctx context.Context) error

	// Ping checks that the backing medium is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing medium.
	Close() error
}
