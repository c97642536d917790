package cache

import (
	"context"
	"strings"
)

// QueryCache stores read-model query results keyed by the logical query
// identity. Values are JSON encoded.
type QueryCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, keys ...string) error
	InvalidatePrefix(ctx context.Context, prefix string) error
	// Patch rewrites a cached entry in place. It reports false when the key
	// is not cached, in which case update is not called.
	Patch(ctx context.Context, key string, update func(raw []byte) ([]byte, error)) (bool, error)
}

// Key joins query identity parts into a cache key.
func Key(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned = append(cleaned, strings.ReplaceAll(strings.TrimSpace(part), ":", "_"))
	}
	return strings.Join(cleaned, ":")
}

// Noop satisfies QueryCache without storing anything.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, any) error         { return nil }
func (Noop) Invalidate(context.Context, ...string) error    { return nil }
func (Noop) InvalidatePrefix(context.Context, string) error { return nil }
func (Noop) Patch(context.Context, string, func([]byte) ([]byte, error)) (bool, error) {
	return false, nil
}
