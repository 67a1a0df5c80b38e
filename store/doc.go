// Package store defines the aggregate persistence interface.
//
// Each subsystem (job, config) defines its own store interface. The
// composite [Store] embeds them, so a single backend satisfies every
// persistence contract:
//
//	type Store interface {
//	    job.Store
//	    config.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/sqlite: durable single-file store, the default for the cmdq command
//   - store/memory: in-memory store for development and testing
//
// # Usage
//
//	s, err := sqlite.Open(ctx, "cmdq.db", sqlite.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
// Open migrates the schema and repairs a corrupt file by moving it aside.
// Stores built with sqlite.New over an existing *sql.DB must call Migrate
// themselves.
package store
