package config

import "sync"

// Versioned guards a cache derived from the config blob. Readers pass the
// blob's current version; the cached value is rebuilt lazily when stale.
// Consumers snapshot the value and release, never holding it across a
// suspension point.
type Versioned[T any] struct {
	build func(*Config) (T, error)

	mu      sync.Mutex
	version int64
	value   T
	primed  bool
}

// NewVersioned wraps a builder.
func NewVersioned[T any](build func(*Config) (T, error)) *Versioned[T] {
	return &Versioned[T]{build: build}
}

// Get returns the cached value, rebuilding if version moved past the cached
// one.
func (v *Versioned[T]) Get(cfg *Config, version int64) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.primed && v.version == version {
		return v.value, nil
	}
	value, err := v.build(cfg)
	if err != nil {
		var zero T
		return zero, err
	}
	v.value = value
	v.version = version
	v.primed = true
	return value, nil
}
