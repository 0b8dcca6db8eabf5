package remote

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Options are handed to an engine factory.
type Options struct {
	// MediaDir is used by engines that play local files
	MediaDir string
	Logger   zerolog.Logger
}

// Factory builds an Engine.
type Factory func(opts Options) (Engine, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes an engine available by name. It panics if called twice
// with the same name or with a nil factory.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("remote: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("remote: Register called twice for engine " + name)
	}
	factories[name] = f
}

// Engines returns the sorted names of registered engines.
func Engines() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the named engine.
func Open(name string, opts Options) (Engine, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("remote: unknown engine %q (forgotten import?)", name)
	}
	return f(opts)
}
