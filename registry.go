package datagate

import (
	"sort"
	"sync"
)

// Registry maps (action, model) pairs to the permission context id and the
// permission bits the authorization middleware checks. It is created once at
// startup and passed explicitly to the components that need it.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*ModelDefinition
}

// ModelDefinition holds the overrides for one model.
type ModelDefinition struct {
	name        string
	contexts    map[ActionTag]string
	permissions map[ActionTag]Permission
	registry    *Registry
}

// NewRegistry creates an empty registry. Unregistered pairs resolve to the
// default "<Action>:<Model>" context id and PermissionForAction bits.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*ModelDefinition),
	}
}

// Model starts or continues defining overrides for a model.
//
// Example:
//
//	registry.Model("Invoice").
//	    On(datagate.ActionCreate, "billing.invoice.create").
//	    On(datagate.ActionDelete, "billing.invoice.delete").
//	    Permission(datagate.ActionDelete, datagate.PermDelete|datagate.PermSpecial)
func (r *Registry) Model(name string) *ModelDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.models[name]; ok {
		return m
	}
	m := &ModelDefinition{
		name:        name,
		contexts:    make(map[ActionTag]string),
		permissions: make(map[ActionTag]Permission),
		registry:    r,
	}
	r.models[name] = m
	return m
}

// GetModel returns the definition for a model, nil if none was registered.
func (r *Registry) GetModel(name string) *ModelDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[name]
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextFor returns the context id checked for tag on model.
func (r *Registry) ContextFor(tag ActionTag, model string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.models[model]; ok {
		if id, ok := m.contexts[tag]; ok {
			return id
		}
	}
	return DefaultContextID(tag, model)
}

// PermissionFor returns the permission bits checked for tag on model.
func (r *Registry) PermissionFor(tag ActionTag, model string) Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.models[model]; ok {
		if p, ok := m.permissions[tag]; ok {
			return p
		}
	}
	return PermissionForAction(tag)
}

// DefaultContextID is the stable composite of action and model name.
func DefaultContextID(tag ActionTag, model string) string {
	return tag.String() + ":" + model
}

// On overrides the context id for tag.
func (m *ModelDefinition) On(tag ActionTag, contextID string) *ModelDefinition {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	m.contexts[tag] = contextID
	return m
}

// Permission overrides the permission bits checked for tag.
func (m *ModelDefinition) Permission(tag ActionTag, perm Permission) *ModelDefinition {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	m.permissions[tag] = perm
	return m
}

// Model continues defining models on the registry (fluent API).
func (m *ModelDefinition) Model(name string) *ModelDefinition {
	return m.registry.Model(name)
}

// Name returns the model name.
func (m *ModelDefinition) Name() string {
	return m.name
}
