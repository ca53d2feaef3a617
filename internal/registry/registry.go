// Package registry implements component L/K: the string-keyed table of
// transfer-name → backend factory that replaces the dynamic
// module/class-path dispatch of the original implementation with Go's
// static-typing-friendly init()-time registration.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/standalone-transfer/xfer/internal/backend"
)

var (
	mu    sync.RWMutex
	table = map[string]backend.Factory{}
)

// Register adds factory under name. Called from each backend package's
// init(), mirroring the core spec's "concrete backends are variant
// implementations registered in a table keyed by string transfer name."
// Panics on duplicate registration — a programmer error, not a runtime
// condition.
func Register(name string, factory backend.Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := table[name]; exists {
		panic(fmt.Sprintf("registry: transfer %q already registered", name))
	}
	table[name] = factory
}

// Lookup returns the factory registered under name, if any.
func Lookup(name string) (backend.Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := table[name]
	return f, ok
}

// Names returns every registered transfer name, sorted, for help text and
// configuration-error messages.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
