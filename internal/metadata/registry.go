package metadata

import (
	"fmt"
	"sort"
	"sync"
)

type Registry struct {
	mu       sync.RWMutex
	schemas  map[string]*Schema // keyed by tenant/kind
	tenants  map[string]bool
	ordered  []*Schema
}

func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
		tenants: make(map[string]bool),
	}
}

// Get returns the schema for (tenant, kind), or nil.
func (r *Registry) Get(tenant, kind string) *Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[fmt.Sprintf("%s/%s", tenant, kind)]
}

// HasTenant returns true if any schema is registered for the tenant.
func (r *Registry) HasTenant(tenant string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tenants[tenant]
}

// Tenants returns all tenant names, sorted.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tenants))
	for t := range r.tenants {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// All returns all registered schemas in registration order.
func (r *Registry) All() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// EventTypes returns every event type any registered schema can emit, sorted.
// Used to seed the per-tenant events_enabled map.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for _, s := range r.ordered {
		for _, op := range []string{"CREATE", "UPDATE", "DELETE"} {
			seen[s.EventType(op)] = true
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Load replaces all schemas in the registry. Called during startup.
func (r *Registry) Load(schemas []*Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas = make(map[string]*Schema, len(schemas))
	r.tenants = make(map[string]bool)
	r.ordered = make([]*Schema, 0, len(schemas))
	for _, s := range schemas {
		r.schemas[s.key()] = s
		r.tenants[s.Tenant] = true
		r.ordered = append(r.ordered, s)
	}
}
