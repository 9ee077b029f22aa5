package query

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-kente/core/schema"
)

// linkSource is the type-parameter-free view of a builder that link
// compilation reads. Every Builder instantiation satisfies it, which lets a
// parent compile child expansions without knowing their entity types.
type linkSource interface {
	entityDescriptor() *schema.EntityDescriptor
	columnSet() ColumnSet
	combinedCriteria() *FilterGroup
	childLinks() ([]LinkEntity, error)
	buildError() error
	cloneSource() linkSource
}

// expansion pairs the property a relationship resolved to with the nested
// builder configured for its target.
type expansion struct {
	prop  *schema.PropertyDescriptor
	child linkSource
}

// relationshipName is the name an expansion compiles under: the declared
// relationship schema name when present, otherwise the lowercased field
// name.
func relationshipName(prop *schema.PropertyDescriptor) string {
	if prop.Relationship != "" {
		return prop.Relationship
	}
	return strings.ToLower(prop.Name)
}

// compileLink turns one expansion into a link node. The join attribute pair
// depends on the relationship's shape:
//
//   - collections join on "<relationship>id" on both sides, the convention
//     being that the relationship name is the stem of the foreign key
//   - a lookup back onto the source's own entity type joins the same way
//   - a cross-type lookup joins from the declared attribute name (falling
//     back to "<relationship>id") to the target's id attribute
//   - a reference-typed attribute joins from its own attribute to the
//     target's id attribute
//
// Child ordering and row caps have already been rejected by the nested
// builder; any error it recorded surfaces here.
func compileLink(source *schema.EntityDescriptor, prop *schema.PropertyDescriptor, child linkSource) (LinkEntity, error) {
	if err := child.buildError(); err != nil {
		return LinkEntity{}, fmt.Errorf("expansion %q: %w", relationshipName(prop), err)
	}
	target := child.entityDescriptor()
	if target == nil {
		return LinkEntity{}, fmt.Errorf("expansion %q: target entity is not describable", relationshipName(prop))
	}

	rel := relationshipName(prop)
	var from, to string
	switch {
	case prop.Kind == schema.PropertyCollection:
		from, to = rel+"id", rel+"id"
	case prop.Kind == schema.PropertyLookup && source != nil && prop.Target == source.Type:
		from, to = rel+"id", rel+"id"
	case prop.Kind == schema.PropertyLookup:
		from = rel + "id"
		if prop.AttributeDeclared {
			from = prop.Attribute
		}
		to = target.IDAttribute
	default:
		from, to = prop.Attribute, target.IDAttribute
	}

	links, err := child.childLinks()
	if err != nil {
		return LinkEntity{}, err
	}
	// The alias is the navigation member's own name, not the relationship
	// name: result rows key joined columns by it, and "deals.title" reads
	// right even when the relationship is named after the foreign key.
	link := LinkEntity{
		Target:   target.Name,
		From:     from,
		To:       to,
		Type:     JoinTypeInner,
		Alias:    strings.ToLower(prop.Name),
		Columns:  child.columnSet(),
		Criteria: child.combinedCriteria(),
		Links:    links,
	}
	if source != nil {
		link.Source = source.Name
	}
	return link, nil
}

// Expand joins the relationship the accessor resolves to and hands the
// caller a nested builder for the target entity. The nested builder selects
// columns, filters, and expands further relationships; its state compiles
// into a link node when the root builds.
//
// Expansion is a free function because Go methods cannot introduce the
// target's type parameter. Usage mirrors the builder's other entry points:
//
//	query.Expand(b, func(c *Contact) any { return &c.Orders },
//	    func(o *query.Builder[Order]) {
//	        o.Select(func(o *Order) any { return &o.Total })
//	    })
//
// An accessor that does not resolve to a relationship drops the expansion
// silently, and the configure callback never runs.
func Expand[T, U any](b *Builder[T], accessor Accessor[T], configure func(*Builder[U])) *Builder[T] {
	if accessor == nil {
		return b.fail(fmt.Errorf("accessor cannot be nil"))
	}
	if configure == nil {
		return b.fail(fmt.Errorf("configure function cannot be nil"))
	}
	prop, ok := resolve(b.desc, accessor)
	if !ok {
		return b
	}
	if prop.Kind == schema.PropertyAttribute && prop.Type != schema.AttributeReference {
		return b
	}
	child := newNestedBuilder[U](b.registry)
	configure(child)
	b.expands = append(b.expands, expansion{prop: prop, child: child})
	return b
}

// ExpandRelationship joins a relationship by its literal name instead of an
// accessor. Known names resolve against the entity's descriptor, compared
// case-insensitively. A name the descriptor does not know still compiles,
// shaped as a collection relationship joining on "<name>id" both sides.
func ExpandRelationship[T, U any](b *Builder[T], relationship string, configure func(*Builder[U])) *Builder[T] {
	if relationship == "" {
		return b.fail(fmt.Errorf("relationship name cannot be empty"))
	}
	if configure == nil {
		return b.fail(fmt.Errorf("configure function cannot be nil"))
	}
	var prop *schema.PropertyDescriptor
	if b.desc != nil {
		if p, ok := b.desc.Property(relationship); ok {
			if p.Kind != schema.PropertyAttribute || p.Type == schema.AttributeReference {
				prop = p
			}
		}
	}
	if prop == nil {
		prop = &schema.PropertyDescriptor{
			Name: relationship,
			Kind: schema.PropertyCollection,
		}
	}
	child := newNestedBuilder[U](b.registry)
	configure(child)
	b.expands = append(b.expands, expansion{prop: prop, child: child})
	return b
}
