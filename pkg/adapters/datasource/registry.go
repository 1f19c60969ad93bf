package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Constructor opens an adapter for one dialect.
type Constructor func(ctx context.Context, cfg *Config, logger *zap.Logger) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register makes a dialect available to Open. Dialect packages call
// this from init; importing a dialect package is what enables it.
func Register(dialect string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[dialect]; dup {
		panic(fmt.Sprintf("datasource: Register called twice for dialect %q", dialect))
	}
	registry[dialect] = fn
}

// Open creates an adapter for the configured dialect.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (Adapter, error) {
	registryMu.RLock()
	fn, ok := registry[cfg.Dialect]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (registered: %v)", cfg.Dialect, Dialects())
	}
	return fn(ctx, cfg, logger)
}

// Dialects returns the registered dialect names, sorted.
func Dialects() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
