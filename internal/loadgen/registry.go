package loadgen

import (
	"fmt"
	"sort"
	"sync"
)

// HostProvider is implemented by profiles that know their default target.
type HostProvider interface {
	DefaultHost() string
}

// Registry maps profile names to profiles.
//
// A registered profile is shared by every user running it, so it must be
// safe for concurrent use. Per-user state belongs on the VirtualUser.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a registry holding profiles.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a profile. Names must be unique.
func (r *Registry) Register(p Profile) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("profile name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[name]; exists {
		return fmt.Errorf("profile %q already registered", name)
	}
	r.profiles[name] = p
	return nil
}

// Get returns the profile registered under name.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Lookup is Get with an error listing the known profiles.
func (r *Registry) Lookup(name string) (Profile, error) {
	if p, ok := r.Get(name); ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown profile %q (available: %v)", name, r.Names())
}

// Names returns registered profile names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultHost returns p's default target, or "" if it has none.
func DefaultHost(p Profile) string {
	if hp, ok := p.(HostProvider); ok {
		return hp.DefaultHost()
	}
	return ""
}
