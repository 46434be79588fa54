package mediasync

import (
	"context"
	"fmt"
	"sync"
)

// DriverCreator builds a storage driver from the full configuration.
type DriverCreator interface {
	CreateDriver(ctx context.Context, cfg Config) (Driver, error)
}

// DriverCreatorFunc creates storage drivers.
type DriverCreatorFunc func(context.Context, Config) (Driver, error)

// CreateDriver creates a storage driver.
func (fn DriverCreatorFunc) CreateDriver(ctx context.Context, cfg Config) (Driver, error) {
	return fn(ctx, cfg)
}

// Factory maps backend kinds to driver creators and builds exactly one
// driver per CreateDriver call. Factory is thread-safe (the created drivers
// own their concurrency guarantees themselves).
type Factory struct {
	mux      sync.RWMutex
	creators map[Kind]DriverCreator
}

// NewFactory returns an empty factory. Backend packages add themselves
// through their Register functions.
func NewFactory() *Factory {
	return &Factory{
		creators: make(map[Kind]DriverCreator),
	}
}

// Register adds a creator for the given backend kind, replacing a
// previously registered one.
func (f *Factory) Register(kind Kind, creator DriverCreator) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.creators[kind] = creator
}

// CreateDriver builds the driver selected by cfg.Driver, passing the whole
// configuration through to the backend. There is no default backend: an
// unrecognized driver value or an unregistered kind yields no driver.
func (f *Factory) CreateDriver(ctx context.Context, cfg Config) (Driver, error) {
	kind, err := ParseKind(cfg.Driver)
	if err != nil {
		return nil, err
	}

	f.mux.RLock()
	creator, ok := f.creators[kind]
	f.mux.RUnlock()

	if !ok {
		return nil, UnregisteredKindError{Kind: kind}
	}

	return creator.CreateDriver(ctx, cfg)
}

// UnregisteredKindError means no creator is registered for a backend kind.
type UnregisteredKindError struct {
	Kind Kind
}

func (err UnregisteredKindError) Error() string {
	return fmt.Sprintf("unregistered storage backend '%s'", err.Kind)
}
