// Package config manages the queue tunables persisted alongside jobs.
//
// Two keys are recognised and validated: max_retries, the default retry
// budget for newly enqueued jobs, and base_delay, the base of the
// exponential retry backoff (delay = base_delay ^ attempts seconds).
// Any other key is stored verbatim.
package config

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xraph/cmdq"
)

// Recognised keys.
const (
	KeyMaxRetries = "max_retries"
	KeyBaseDelay  = "base_delay"
)

// Defaults used when a recognised key is not stored.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2.0
)

// Provider reads and writes tunables through a Store.
type Provider struct {
	store Store
}

// NewProvider returns a Provider backed by s.
func NewProvider(s Store) *Provider {
	return &Provider{store: s}
}

// NormalizeKey lowercases key and maps dashes to underscores, so that
// "max-retries" and "max_retries" name the same setting.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

// Get returns the stored value for key, or def when it is not set.
func (p *Provider) Get(ctx context.Context, key, def string) (string, error) {
	v, ok, err := p.store.GetConfig(ctx, NormalizeKey(key))
	if err != nil {
		return "", fmt.Errorf("cmdq/config: get %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Set validates value for recognised keys and stores it.
func (p *Provider) Set(ctx context.Context, key, value string) error {
	key = NormalizeKey(key)
	if key == "" {
		return fmt.Errorf("%w: empty key", cmdq.ErrInvalidConfigValue)
	}
	value = strings.TrimSpace(value)
	if err := Validate(key, value); err != nil {
		return err
	}
	if err := p.store.SetConfig(ctx, key, value); err != nil {
		return fmt.Errorf("cmdq/config: set %s: %w", key, err)
	}
	return nil
}

// List returns all stored settings with defaults filled in for the
// recognised keys that are not stored.
func (p *Provider) List(ctx context.Context) (map[string]string, error) {
	stored, err := p.store.ListConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("cmdq/config: list: %w", err)
	}
	out := map[string]string{}
	for _, k := range []string{KeyMaxRetries, KeyBaseDelay} {
		out[k], _ = Default(k)
	}
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// Default returns the textual default of a recognised key.
func Default(key string) (string, bool) {
	switch NormalizeKey(key) {
	case KeyMaxRetries:
		return strconv.Itoa(DefaultMaxRetries), true
	case KeyBaseDelay:
		return formatFloat(DefaultBaseDelay), true
	}
	return "", false
}

// MaxRetries returns the default retry budget for new jobs.
func (p *Provider) MaxRetries(ctx context.Context) (int, error) {
	v, ok, err := p.store.GetConfig(ctx, KeyMaxRetries)
	if err != nil {
		return 0, fmt.Errorf("cmdq/config: get %s: %w", KeyMaxRetries, err)
	}
	if !ok {
		return DefaultMaxRetries, nil
	}
	n, err := parseMaxRetries(v)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// BaseDelay returns the backoff base in seconds.
func (p *Provider) BaseDelay(ctx context.Context) (float64, error) {
	v, ok, err := p.store.GetConfig(ctx, KeyBaseDelay)
	if err != nil {
		return 0, fmt.Errorf("cmdq/config: get %s: %w", KeyBaseDelay, err)
	}
	if !ok {
		return DefaultBaseDelay, nil
	}
	return parseBaseDelay(v)
}

// Validate checks value against the rules for key. Unknown keys always pass.
func Validate(key, value string) error {
	var err error
	switch NormalizeKey(key) {
	case KeyMaxRetries:
		_, err = parseMaxRetries(value)
	case KeyBaseDelay:
		_, err = parseBaseDelay(value)
	}
	return err
}

func parseMaxRetries(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be an integer >= 0, got %q", cmdq.ErrInvalidConfigValue, KeyMaxRetries, v)
	}
	return n, nil
}

func parseBaseDelay(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return 0, fmt.Errorf("%w: %s must be a number >= 1, got %q", cmdq.ErrInvalidConfigValue, KeyBaseDelay, v)
	}
	return f, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
