package filter

import (
	"sort"
	"sync"
)

var (
	mu         sync.RWMutex
	predicates = map[string]Predicate{}
)

// Register makes a predicate available to expressions as @name.
// Registering an existing name replaces it. Predicates must be registered
// before any expression that references them is compiled.
func Register(name string, p Predicate) {
	mu.Lock()
	defer mu.Unlock()
	predicates[name] = p
}

// Lookup returns the predicate registered under name.
func Lookup(name string) (Predicate, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := predicates[name]
	return p, ok
}

// Names returns the sorted list of registered predicate names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(predicates))
	for name := range predicates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
