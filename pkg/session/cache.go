package session

import (
	"sync"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
)

// ElementCache maps element ids to the Commander that produced them. Entries
// live as long as the session.
type ElementCache struct {
	mu sync.RWMutex
	m  map[string]driver.Commander
}

// NewElementCache creates an empty cache.
func NewElementCache() *ElementCache {
	return &ElementCache{m: make(map[string]driver.Commander)}
}

// Register binds id to c. Empty ids are ignored.
func (e *ElementCache) Register(id string, c driver.Commander) {
	if id == "" {
		return
	}
	e.mu.Lock()
	e.m[id] = c
	e.mu.Unlock()
}

// RegisterValue registers every element reference found in a command result,
// either a single reference or a list of them.
func (e *ElementCache) RegisterValue(value interface{}, c driver.Commander) int {
	switch v := value.(type) {
	case map[string]interface{}:
		if id := driver.ElementID(v); id != "" {
			e.Register(id, c)
			return 1
		}
	case []interface{}:
		n := 0
		for _, item := range v {
			if id := driver.ElementID(item); id != "" {
				e.Register(id, c)
				n++
			}
		}
		return n
	}
	return 0
}

// Lookup returns the Commander registered for id.
func (e *ElementCache) Lookup(id string) (driver.Commander, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.m[id]
	return c, ok
}

// Len returns the number of cached handles.
func (e *ElementCache) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.m)
}

// Clear drops every entry.
func (e *ElementCache) Clear() {
	e.mu.Lock()
	e.m = make(map[string]driver.Commander)
	e.mu.Unlock()
}
