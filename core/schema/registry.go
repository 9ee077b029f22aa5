package schema

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry holds entity descriptors keyed by Go type. It is intended to be
// populated once at startup through explicit registration and read for the
// lifetime of the process; reads after the registration phase never analyze
// a type twice. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*EntityDescriptor
	byName map[string]*EntityDescriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*EntityDescriptor),
		byName: make(map[string]*EntityDescriptor),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the package-level
// Register and Describe functions.
func Default() *Registry {
	return defaultRegistry
}

// RegisterType analyzes a struct type under the given logical name and stores
// the descriptor. An empty name falls back to the lowercased type name.
// Registration fails when analysis reports issues or when the type or name is
// already registered.
func (r *Registry) RegisterType(t reflect.Type, name string) (*EntityDescriptor, error) {
	desc, issues := analyze(t, name)
	if len(issues) > 0 {
		return nil, fmt.Errorf("schema: cannot register %s: %s", t, issues[0].Message)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byType[desc.Type]; ok {
		return nil, fmt.Errorf("schema: type %s is already registered as %q", desc.Type, existing.Name)
	}
	if existing, ok := r.byName[desc.Name]; ok {
		return nil, fmt.Errorf("schema: name %q is already registered for %s", desc.Name, existing.Type)
	}

	r.byType[desc.Type] = desc
	r.byName[desc.Name] = desc
	return desc, nil
}

// DescribeType returns the descriptor for a struct type, analyzing and
// caching it under the lowercased-type-name fallback when the type was never
// explicitly registered. Types that cannot be analyzed yield nil.
func (r *Registry) DescribeType(t reflect.Type) *EntityDescriptor {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	desc, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return desc
	}

	desc, issues := analyze(t, "")
	for _, issue := range issues {
		if issue.Severity == "error" {
			return nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[t]; ok {
		return existing
	}
	// A lazily described type must not displace an explicit registration
	// under the same fallback name.
	if _, taken := r.byName[desc.Name]; !taken {
		r.byName[desc.Name] = desc
	}
	r.byType[t] = desc
	return desc
}

// Lookup returns the descriptor registered under a logical name.
func (r *Registry) Lookup(name string) (*EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byName[name]
	return desc, ok
}

// Descriptors returns all descriptors currently held by the registry.
func (r *Registry) Descriptors() []*EntityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]*EntityDescriptor, 0, len(r.byType))
	for _, d := range r.byType {
		descs = append(descs, d)
	}
	return descs
}

// Register analyzes T under the given logical name in the default registry.
func Register[T any](name string) (*EntityDescriptor, error) {
	return RegisterIn[T](defaultRegistry, name)
}

// RegisterIn analyzes T under the given logical name in a specific registry.
func RegisterIn[T any](r *Registry, name string) (*EntityDescriptor, error) {
	return r.RegisterType(reflect.TypeOf((*T)(nil)).Elem(), name)
}

// Describe returns T's descriptor from the default registry, applying the
// lowercased-type-name fallback for unregistered types.
func Describe[T any]() *EntityDescriptor {
	return DescribeIn[T](defaultRegistry)
}

// DescribeIn returns T's descriptor from a specific registry.
func DescribeIn[T any](r *Registry) *EntityDescriptor {
	return r.DescribeType(reflect.TypeOf((*T)(nil)).Elem())
}
