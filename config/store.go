package config

import "context"

// Store defines the persistence contract for queue tunables. Values are
// stored as their textual form; Provider handles parsing and validation.
type Store interface {
	// GetConfig returns the stored value for key and whether it was present.
	GetConfig(ctx context.Context, key string) (string, bool, error)

	// SetConfig stores value under key, replacing any previous value.
	SetConfig(ctx context.Context, key, value string) error

	// ListConfig returns every stored key/value pair.
	ListConfig(ctx context.Context) (map[string]string, error)
}
