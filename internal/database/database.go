package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Unlink/database/internal/errs"
)

// OpenFunc connects to an engine and returns a ready Conn.
type OpenFunc func(ctx context.Context, cfg *Config) (Conn, error)

var (
	registryMu sync.RWMutex
	registry   = map[DriverName]OpenFunc{}
)

// Register makes an engine adapter available under name.
// Adapter packages call it from init.
func Register(name DriverName, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[NormalizeDriver(string(name))] = open
}

// Registered returns the registered driver names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// Open connects using the adapter registered for cfg.Driver.
func Open(ctx context.Context, cfg *Config) (Conn, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "database DSN is required")
	}
	name := NormalizeDriver(string(cfg.Driver))

	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("driver not registered: %q (available: %v)", name, Registered()))
	}
	return open(ctx, cfg)
}
