package region

import (
	"sort"
	"sync"
)

// Registry owns the named Region set and implements the tag-or-name
// lookup used by observer-to-region bindings (spec §4.5).
type Registry struct {
	mu      sync.RWMutex
	regions map[string]*Region
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{regions: make(map[string]*Region)}
}

// Add registers or replaces a Region by name.
func (r *Registry) Add(reg *Region) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions[reg.Name] = reg
}

// Remove deletes a Region by name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.regions, name)
}

// Get looks a Region up by exact name.
func (r *Registry) Get(name string) (*Region, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regions[name]
	return reg, ok
}

// All returns every registered Region, sorted by name.
func (r *Registry) All() []*Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(*Region) bool { return true })
}

// ByNameOrTag returns every Region matching token: the special token
// "all" matches every region; otherwise a region matches if its name
// equals token or its tag set contains token (spec §4.5).
func (r *Registry) ByNameOrTag(token string) []*Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if token == "all" {
		return r.sortedLocked(func(*Region) bool { return true })
	}
	return r.sortedLocked(func(reg *Region) bool { return reg.Name == token || reg.HasTag(token) })
}

func (r *Registry) sortedLocked(match func(*Region) bool) []*Region {
	var out []*Region
	for _, reg := range r.regions {
		if match(reg) {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
