// Package schema describes Go entity types to the query layer. A descriptor
// is built once per entity type by reflection and records, for every exported
// struct field, the store attribute name the field maps to and whether the
// field is a plain attribute, a many-to-one lookup, or a one-to-many
// collection navigation. Descriptors are looked up through a Registry and are
// read-only after construction.
package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record represents a single row of store data, keyed by attribute name.
// Columns selected through a join are keyed "<alias>.<attribute>".
type Record map[string]any

// TagKey is the struct tag consulted when a type is analyzed.
//
// Supported options, comma separated:
//
//	kente:"-"                          skip the field entirely
//	kente:"attribute=primarycontactid" declared logical attribute name
//	kente:"relationship=account_contacts" declared relationship schema name
//	kente:"references=contact"         target entity of a Reference attribute
//	kente:"id"                         marks the primary-key attribute
const TagKey = "kente"

// AttributeType classifies the store representation of an attribute.
type AttributeType string

const (
	AttributeString    AttributeType = "string"
	AttributeInteger   AttributeType = "integer"
	AttributeFloat     AttributeType = "float"
	AttributeBoolean   AttributeType = "boolean"
	AttributeDateTime  AttributeType = "datetime"
	AttributeUUID      AttributeType = "uuid"
	AttributeReference AttributeType = "reference"
	AttributeJSON      AttributeType = "json"
)

// PropertyKind distinguishes plain attributes from navigations.
type PropertyKind string

const (
	PropertyAttribute  PropertyKind = "attribute"
	PropertyLookup     PropertyKind = "lookup"
	PropertyCollection PropertyKind = "collection"
)

// Issue represents a problem found while analyzing an entity type.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// PropertyDescriptor describes a single exported field of an entity type.
type PropertyDescriptor struct {
	// Name is the Go field name.
	Name string `json:"name"`
	// Attribute is the store attribute name the field resolves to: the
	// declared attribute annotation when present, otherwise the lowercased
	// field name.
	Attribute string `json:"attribute"`
	// AttributeDeclared is true when Attribute came from a tag rather than
	// the lowercase naming convention. Join compilation uses a declared
	// attribute as the from-side of a cross-type lookup join.
	AttributeDeclared bool `json:"attributeDeclared,omitempty"`
	// Relationship is the declared relationship schema name, if any. It
	// overrides the member name during relationship resolution only.
	Relationship string `json:"relationship,omitempty"`
	// References names the entity a Reference-typed attribute points at.
	References string `json:"references,omitempty"`

	Kind PropertyKind  `json:"kind"`
	Type AttributeType `json:"type,omitempty"`
	IsID bool          `json:"isId,omitempty"`

	// Index is the field's position in the struct, used for address matching
	// during accessor resolution and for record conversion.
	Index int `json:"-"`
	// FieldType is the field's Go type.
	FieldType reflect.Type `json:"-"`
	// Target is the navigation target element type for lookups and
	// collections, nil for plain attributes.
	Target reflect.Type `json:"-"`
}

// EntityDescriptor describes one entity type: its store logical name, its
// primary-key attribute, and its properties in declaration order.
type EntityDescriptor struct {
	// Name is the store's logical name for the entity type.
	Name string `json:"name"`
	// IDAttribute is the primary-key attribute: the attribute of the field
	// tagged "id" when present, otherwise "<name>id" by convention.
	IDAttribute string `json:"idAttribute"`

	Properties []*PropertyDescriptor `json:"properties"`

	// Type is the described Go struct type.
	Type reflect.Type `json:"-"`

	byName      map[string]*PropertyDescriptor // keyed by lowercased field name
	byAttribute map[string]*PropertyDescriptor // keyed by attribute name
}

// Property returns the property whose Go field name matches the given name,
// compared case-insensitively.
func (d *EntityDescriptor) Property(name string) (*PropertyDescriptor, bool) {
	p, ok := d.byName[strings.ToLower(name)]
	return p, ok
}

// AttributeNamed returns the property mapped to the given store attribute.
func (d *EntityDescriptor) AttributeNamed(attribute string) (*PropertyDescriptor, bool) {
	p, ok := d.byAttribute[attribute]
	return p, ok
}

// Attributes returns the plain-attribute properties in declaration order,
// excluding navigations.
func (d *EntityDescriptor) Attributes() []*PropertyDescriptor {
	attrs := make([]*PropertyDescriptor, 0, len(d.Properties))
	for _, p := range d.Properties {
		if p.Kind == PropertyAttribute {
			attrs = append(attrs, p)
		}
	}
	return attrs
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	uuidType      = reflect.TypeOf(uuid.UUID{})
	referenceType = reflect.TypeOf(Reference{})
)

// analyze builds a descriptor for a struct type. The returned issues carry
// error severity when the descriptor is unusable; the descriptor is still
// returned for fields that analyzed cleanly.
func analyze(t reflect.Type, name string) (*EntityDescriptor, []Issue) {
	var issues []Issue
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		issues = append(issues, Issue{
			Code:     "NOT_A_STRUCT",
			Message:  fmt.Sprintf("entity type must be a struct, got %s", t.Kind()),
			Severity: "error",
		})
		return nil, issues
	}

	if name == "" {
		name = strings.ToLower(t.Name())
	}

	desc := &EntityDescriptor{
		Name:        name,
		Type:        t,
		byName:      make(map[string]*PropertyDescriptor),
		byAttribute: make(map[string]*PropertyDescriptor),
	}

	idCount := 0
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}

		tag, skip, tagIssues := parseTag(field, name)
		issues = append(issues, tagIssues...)
		if skip {
			continue
		}

		prop := buildProperty(field, i, tag)
		if prop.IsID {
			idCount++
			if idCount > 1 {
				issues = append(issues, Issue{
					Code:     "MULTIPLE_ID_FIELDS",
					Message:  fmt.Sprintf("field %q is a second id attribute", field.Name),
					Path:     name + "." + field.Name,
					Severity: "error",
				})
			}
		}

		key := strings.ToLower(field.Name)
		if _, exists := desc.byName[key]; exists {
			issues = append(issues, Issue{
				Code:     "DUPLICATE_PROPERTY",
				Message:  fmt.Sprintf("field %q collides with another property under case folding", field.Name),
				Path:     name + "." + field.Name,
				Severity: "error",
			})
			continue
		}

		desc.Properties = append(desc.Properties, prop)
		desc.byName[key] = prop
		if prop.Kind == PropertyAttribute {
			if _, exists := desc.byAttribute[prop.Attribute]; exists {
				issues = append(issues, Issue{
					Code:     "DUPLICATE_ATTRIBUTE",
					Message:  fmt.Sprintf("attribute %q is mapped by more than one field", prop.Attribute),
					Path:     name + "." + field.Name,
					Severity: "error",
				})
			}
			desc.byAttribute[prop.Attribute] = prop
		}

		if prop.IsID {
			desc.IDAttribute = prop.Attribute
		}
	}

	if desc.IDAttribute == "" {
		desc.IDAttribute = name + "id"
	}

	return desc, issues
}

// fieldTag holds the parsed kente tag options for one field.
type fieldTag struct {
	attribute    string
	relationship string
	references   string
	id           bool
}

func parseTag(field reflect.StructField, entity string) (fieldTag, bool, []Issue) {
	var tag fieldTag
	raw, ok := field.Tag.Lookup(TagKey)
	if !ok {
		return tag, false, nil
	}
	if raw == "-" {
		return tag, true, nil
	}

	var issues []Issue
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch key, value, hasValue := strings.Cut(part, "="); {
		case key == "attribute" && hasValue && value != "":
			tag.attribute = strings.ToLower(value)
		case key == "relationship" && hasValue && value != "":
			tag.relationship = strings.ToLower(value)
		case key == "references" && hasValue && value != "":
			tag.references = strings.ToLower(value)
		case key == "id" && !hasValue:
			tag.id = true
		default:
			issues = append(issues, Issue{
				Code:     "INVALID_TAG",
				Message:  fmt.Sprintf("unrecognized tag option %q on field %q", part, field.Name),
				Path:     entity + "." + field.Name,
				Severity: "error",
			})
		}
	}
	return tag, false, issues
}

func buildProperty(field reflect.StructField, index int, tag fieldTag) *PropertyDescriptor {
	prop := &PropertyDescriptor{
		Name:         field.Name,
		Attribute:    strings.ToLower(field.Name),
		Relationship: tag.relationship,
		References:   tag.references,
		IsID:         tag.id,
		Index:        index,
		FieldType:    field.Type,
	}
	if tag.attribute != "" {
		prop.Attribute = tag.attribute
		prop.AttributeDeclared = true
	}

	ft := field.Type
	switch {
	case isCollectionType(ft):
		prop.Kind = PropertyCollection
		prop.Target = navigationTarget(ft.Elem())
	case isLookupType(ft):
		prop.Kind = PropertyLookup
		prop.Target = navigationTarget(ft)
	default:
		prop.Kind = PropertyAttribute
		prop.Type = attributeTypeOf(ft)
	}
	return prop
}

// isCollectionType reports whether the field is a one-to-many navigation:
// a slice of structs or struct pointers, excluding byte slices and slices of
// scalar-like structs such as time.Time.
func isCollectionType(t reflect.Type) bool {
	if t.Kind() != reflect.Slice {
		return false
	}
	return isLookupType(t.Elem())
}

// isLookupType reports whether the field is a many-to-one navigation: a
// struct or struct pointer that is not one of the scalar-like struct types.
func isLookupType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	switch t {
	case timeType, uuidType, referenceType:
		return false
	}
	return true
}

func navigationTarget(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func attributeTypeOf(t reflect.Type) AttributeType {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return AttributeDateTime
	case uuidType:
		return AttributeUUID
	case referenceType:
		return AttributeReference
	}
	switch t.Kind() {
	case reflect.String:
		return AttributeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return AttributeInteger
	case reflect.Float32, reflect.Float64:
		return AttributeFloat
	case reflect.Bool:
		return AttributeBoolean
	default:
		return AttributeJSON
	}
}
