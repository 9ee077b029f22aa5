package query

import (
	"reflect"

	"github.com/asaidimu/go-kente/core/schema"
)

// Accessor selects one field of an entity by returning its address. The
// canonical form is
//
//	func(c *Contact) any { return &c.LastName }
//
// The builder resolves the returned pointer against the entity's descriptor
// to find the property it names. An accessor that returns anything other
// than the address of a top-level field of its argument does not resolve.
type Accessor[T any] func(*T) any

// resolveProperty matches the pointer an accessor returned against the
// addresses of the probe's top-level fields. The probe must be the same
// pointer the accessor was invoked with. Returns false when the accessor
// returned nil, a non-pointer, or a pointer to anything but a top-level
// field; callers treat that as an unresolvable selection.
func resolveProperty(desc *schema.EntityDescriptor, probe, target any) (*schema.PropertyDescriptor, bool) {
	if desc == nil || target == nil {
		return nil, false
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer || tv.IsNil() {
		return nil, false
	}
	pv := reflect.ValueOf(probe)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		return nil, false
	}
	base := pv.Elem()
	if base.Kind() != reflect.Struct {
		return nil, false
	}
	addr := tv.Pointer()
	for _, prop := range desc.Properties {
		if prop.Index < 0 || prop.Index >= base.NumField() {
			continue
		}
		field := base.Field(prop.Index)
		if !field.CanAddr() {
			continue
		}
		// The first field shares its address with the struct itself, so the
		// pointer type has to match as well as the address.
		if field.Addr().Pointer() == addr && field.Addr().Type() == tv.Type() {
			return prop, true
		}
	}
	return nil, false
}

// resolve invokes the accessor against a fresh probe value and matches the
// result back to a property descriptor.
func resolve[T any](desc *schema.EntityDescriptor, accessor Accessor[T]) (*schema.PropertyDescriptor, bool) {
	if accessor == nil {
		return nil, false
	}
	probe := new(T)
	return resolveProperty(desc, probe, accessor(probe))
}
