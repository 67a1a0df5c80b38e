// Package sqlite implements store.Store on a single SQLite file using
// github.com/mattn/go-sqlite3.
//
// Open is the usual entry point. It creates the file and parent directory
// when missing, enables WAL, migrates the schema, and runs a quick integrity
// check. A file that is not a valid database is renamed to
// "<path>.corrupt-<unix>" and replaced by an empty store; the repair is
// logged at WARN level.
//
// Transactions started by AtomicJobs use BEGIN IMMEDIATE, so the write lock
// is taken up front and two processes sharing the file cannot claim the
// same job.
//
// Timestamps are stored as fixed-width UTC text (job.TimeFormat) so that
// ORDER BY created_at matches chronological order.
package sqlite
