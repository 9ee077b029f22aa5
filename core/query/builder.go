package query

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-kente/core/schema"
)

// Builder accumulates a typed query description for one entity type and
// compiles it into a QueryExpression. Construction resolves the entity's
// descriptor once; every accessor passed afterwards resolves against it.
//
// Methods return the builder for chaining and never panic on bad input.
// Invalid arguments (nil accessors, unknown operators, nil condition values)
// record a deferred error that Build returns; accessors that resolve to
// nothing are skipped without error. Build reads the accumulated state
// without modifying it and can be called any number of times.
type Builder[T any] struct {
	registry *schema.Registry
	desc     *schema.EntityDescriptor

	columns []string
	groups  []FilterGroup
	orders  []Order
	expands []expansion
	top     *int64

	// nested marks builders created for an expansion, where row caps and
	// ordering are rejected.
	nested bool
	err    error
}

// NewBuilder creates a builder for T against the default registry.
func NewBuilder[T any]() *Builder[T] {
	return NewBuilderIn[T](schema.Default())
}

// NewBuilderIn creates a builder for T against the given registry. If T is
// not a describable entity type the builder carries an error that Build
// returns.
func NewBuilderIn[T any](r *schema.Registry) *Builder[T] {
	b := &Builder[T]{registry: r}
	if r == nil {
		b.err = fmt.Errorf("registry cannot be nil")
		return b
	}
	b.desc = schema.DescribeIn[T](r)
	if b.desc == nil {
		b.err = fmt.Errorf("%s is not a describable entity type", reflect.TypeOf((*T)(nil)).Elem())
	}
	return b
}

func newNestedBuilder[U any](r *schema.Registry) *Builder[U] {
	child := NewBuilderIn[U](r)
	child.nested = true
	return child
}

// fail records the first error; later calls keep chaining but Build reports
// the original cause.
func (b *Builder[T]) fail(err error) *Builder[T] {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Select adds the attributes the given accessors resolve to. Accessors that
// do not resolve to a plain attribute are skipped, and duplicates are
// ignored. Without any selection the compiled query asks for all columns.
func (b *Builder[T]) Select(accessors ...Accessor[T]) *Builder[T] {
	for _, accessor := range accessors {
		if accessor == nil {
			return b.fail(fmt.Errorf("accessor cannot be nil"))
		}
		prop, ok := resolve(b.desc, accessor)
		if !ok || prop.Kind != schema.PropertyAttribute {
			continue
		}
		if b.hasColumn(prop.Attribute) {
			continue
		}
		b.columns = append(b.columns, prop.Attribute)
	}
	return b
}

func (b *Builder[T]) hasColumn(attribute string) bool {
	for _, column := range b.columns {
		if column == attribute {
			return true
		}
	}
	return false
}

// Where adds a single condition as its own filter group. Consecutive Where
// calls stay siblings: each keeps its own group and the groups meet under
// the implicit top-level "and" at compile time, never merged into one. An
// accessor that does not resolve to an attribute drops the condition
// silently.
func (b *Builder[T]) Where(accessor Accessor[T], operator ComparisonOperator, values ...any) *Builder[T] {
	cond, ok, err := b.condition(accessor, operator, values)
	if err != nil {
		return b.fail(err)
	}
	if !ok {
		return b
	}
	b.groups = append(b.groups, FilterGroup{Operator: LogicalAnd, Conditions: []Condition{cond}})
	return b
}

// condition resolves and normalizes one comparison. The second return value
// is false when the accessor did not resolve and the condition should be
// skipped.
func (b *Builder[T]) condition(accessor Accessor[T], operator ComparisonOperator, values []any) (Condition, bool, error) {
	if accessor == nil {
		return Condition{}, false, fmt.Errorf("accessor cannot be nil")
	}
	if !operator.IsValid() {
		return Condition{}, false, fmt.Errorf("unsupported comparison operator %q", operator)
	}
	prop, ok := resolve(b.desc, accessor)
	if !ok || prop.Kind != schema.PropertyAttribute {
		return Condition{}, false, nil
	}
	switch operator {
	case ComparisonOperatorNull, ComparisonOperatorNotNull:
		// Null checks carry no values; any supplied are discarded.
		return Condition{Attribute: prop.Attribute, Operator: operator}, true, nil
	case ComparisonOperatorIn, ComparisonOperatorNotIn:
		// Membership accepts any value count, including none.
	default:
		if len(values) == 0 {
			return Condition{}, false, fmt.Errorf("operator %q requires a value for attribute %q", operator, prop.Attribute)
		}
	}
	normalized, err := normalizeValues(values)
	if err != nil {
		return Condition{}, false, fmt.Errorf("condition on %q: %w", prop.Attribute, err)
	}
	return Condition{Attribute: prop.Attribute, Operator: operator, Values: normalized}, true, nil
}

// WhereGroup collects conditions under one logical operator via the
// configure callback. A group that ends up with no conditions and no nested
// groups is dropped without error.
func (b *Builder[T]) WhereGroup(operator LogicalOperator, configure func(*FilterGroupBuilder[T])) *Builder[T] {
	if configure == nil {
		return b.fail(fmt.Errorf("configure function cannot be nil"))
	}
	if operator != LogicalAnd && operator != LogicalOr {
		return b.fail(fmt.Errorf("unsupported logical operator %q", operator))
	}
	gb := &FilterGroupBuilder[T]{owner: b, group: FilterGroup{Operator: operator}}
	configure(gb)
	if len(gb.group.Conditions) == 0 && len(gb.group.Filters) == 0 {
		return b
	}
	b.groups = append(b.groups, gb.group)
	return b
}

// AndWhereGroup adds a group whose conditions must all hold.
func (b *Builder[T]) AndWhereGroup(configure func(*FilterGroupBuilder[T])) *Builder[T] {
	return b.WhereGroup(LogicalAnd, configure)
}

// OrWhereGroup adds a group where any condition may hold.
func (b *Builder[T]) OrWhereGroup(configure func(*FilterGroupBuilder[T])) *Builder[T] {
	return b.WhereGroup(LogicalOr, configure)
}

// WhereAll is AndWhereGroup under a name that reads as intent.
func (b *Builder[T]) WhereAll(configure func(*FilterGroupBuilder[T])) *Builder[T] {
	return b.WhereGroup(LogicalAnd, configure)
}

// WhereAny is OrWhereGroup under a name that reads as intent.
func (b *Builder[T]) WhereAny(configure func(*FilterGroupBuilder[T])) *Builder[T] {
	return b.WhereGroup(LogicalOr, configure)
}

// OrderBy sorts results ascending by the given attribute. Ordering applies
// to the root query; inside an expansion it records an error.
func (b *Builder[T]) OrderBy(accessor Accessor[T]) *Builder[T] {
	return b.order(accessor, SortDirectionAsc)
}

// OrderByDesc sorts results descending by the given attribute.
func (b *Builder[T]) OrderByDesc(accessor Accessor[T]) *Builder[T] {
	return b.order(accessor, SortDirectionDesc)
}

func (b *Builder[T]) order(accessor Accessor[T], direction SortDirection) *Builder[T] {
	if b.nested {
		return b.fail(fmt.Errorf("ordering applies to the root query only"))
	}
	if accessor == nil {
		return b.fail(fmt.Errorf("accessor cannot be nil"))
	}
	prop, ok := resolve(b.desc, accessor)
	if !ok || prop.Kind != schema.PropertyAttribute {
		return b
	}
	b.orders = append(b.orders, Order{Attribute: prop.Attribute, Direction: direction})
	return b
}

// Top caps the number of rows the query returns. The cap applies to the
// root query; inside an expansion it records an error.
func (b *Builder[T]) Top(count int64) *Builder[T] {
	if b.nested {
		return b.fail(fmt.Errorf("top applies to the root query only"))
	}
	if count <= 0 {
		return b.fail(fmt.Errorf("top count must be positive, got %d", count))
	}
	c := count
	b.top = &c
	return b
}

// Build compiles the accumulated description into a query graph. Repeated
// calls return equal graphs, and later builder changes do not touch graphs
// already returned.
func (b *Builder[T]) Build() (*QueryExpression, error) {
	if b.err != nil {
		return nil, b.err
	}
	links, err := b.childLinks()
	if err != nil {
		return nil, err
	}
	expr := &QueryExpression{
		Entity:   b.desc.Name,
		Columns:  b.columnSet(),
		Criteria: b.combinedCriteria(),
		Links:    links,
	}
	if len(b.orders) > 0 {
		expr.Orders = append([]Order(nil), b.orders...)
	}
	if b.top != nil {
		top := *b.top
		expr.Top = &top
	}
	return expr, nil
}

// Validate reports problems with the accumulated description without
// building it.
func (b *Builder[T]) Validate() []schema.Issue {
	var issues []schema.Issue
	if b.err != nil {
		issues = append(issues, schema.Issue{
			Code:     "INVALID_QUERY",
			Message:  b.err.Error(),
			Path:     b.entityName(),
			Severity: "error",
		})
		return issues
	}
	if _, err := b.childLinks(); err != nil {
		issues = append(issues, schema.Issue{
			Code:     "INVALID_EXPANSION",
			Message:  err.Error(),
			Path:     b.entityName(),
			Severity: "error",
		})
	}
	return issues
}

// Clone returns an independent copy of the builder. Expansions are cloned
// recursively, so configuring the original afterwards does not affect the
// copy.
func (b *Builder[T]) Clone() *Builder[T] {
	clone := &Builder[T]{
		registry: b.registry,
		desc:     b.desc,
		nested:   b.nested,
		err:      b.err,
	}
	if len(b.columns) > 0 {
		clone.columns = append([]string(nil), b.columns...)
	}
	if len(b.groups) > 0 {
		clone.groups = make([]FilterGroup, 0, len(b.groups))
		for _, group := range b.groups {
			clone.groups = append(clone.groups, cloneGroup(group))
		}
	}
	if len(b.orders) > 0 {
		clone.orders = append([]Order(nil), b.orders...)
	}
	if len(b.expands) > 0 {
		clone.expands = make([]expansion, 0, len(b.expands))
		for _, x := range b.expands {
			clone.expands = append(clone.expands, expansion{prop: x.prop, child: x.child.cloneSource()})
		}
	}
	if b.top != nil {
		top := *b.top
		clone.top = &top
	}
	return clone
}

// Reset clears the accumulated description, keeping the entity binding.
func (b *Builder[T]) Reset() *Builder[T] {
	b.columns = nil
	b.groups = nil
	b.orders = nil
	b.expands = nil
	b.top = nil
	if b.desc != nil {
		b.err = nil
	}
	return b
}

// String renders the compiled graph as JSON, or a short diagnostic when the
// description is invalid.
func (b *Builder[T]) String() string {
	expr, err := b.Build()
	if err != nil {
		return fmt.Sprintf("query(%s: invalid: %v)", b.entityName(), err)
	}
	data, err := json.Marshal(expr)
	if err != nil {
		return fmt.Sprintf("query(%s)", b.entityName())
	}
	return string(data)
}

func (b *Builder[T]) entityName() string {
	if b.desc != nil {
		return b.desc.Name
	}
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// The methods below are the linkSource view of the builder: what link
// compilation reads, independent of the type parameter.

func (b *Builder[T]) entityDescriptor() *schema.EntityDescriptor { return b.desc }

func (b *Builder[T]) buildError() error { return b.err }

func (b *Builder[T]) cloneSource() linkSource { return b.Clone() }

func (b *Builder[T]) columnSet() ColumnSet {
	if len(b.columns) == 0 {
		return ColumnSet{AllColumns: true}
	}
	columns := make([]string, len(b.columns))
	copy(columns, b.columns)
	return ColumnSet{Columns: columns}
}

// combinedCriteria wraps the accumulated groups in one implicit top-level
// "and" group, each accumulated group as a sub-filter. No groups means no
// criteria at all.
func (b *Builder[T]) combinedCriteria() *FilterGroup {
	if len(b.groups) == 0 {
		return nil
	}
	root := FilterGroup{
		Operator: LogicalAnd,
		Filters:  make([]FilterGroup, 0, len(b.groups)),
	}
	for _, group := range b.groups {
		root.Filters = append(root.Filters, cloneGroup(group))
	}
	return &root
}

func (b *Builder[T]) childLinks() ([]LinkEntity, error) {
	if len(b.expands) == 0 {
		return nil, nil
	}
	links := make([]LinkEntity, 0, len(b.expands))
	for _, x := range b.expands {
		link, err := compileLink(b.desc, x.prop, x.child)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func cloneGroup(group FilterGroup) FilterGroup {
	out := FilterGroup{Operator: group.Operator}
	if len(group.Conditions) > 0 {
		out.Conditions = make([]Condition, len(group.Conditions))
		for i, cond := range group.Conditions {
			c := cond
			if len(cond.Values) > 0 {
				c.Values = append([]any(nil), cond.Values...)
			}
			out.Conditions[i] = c
		}
	}
	if len(group.Filters) > 0 {
		out.Filters = make([]FilterGroup, 0, len(group.Filters))
		for _, sub := range group.Filters {
			out.Filters = append(out.Filters, cloneGroup(sub))
		}
	}
	return out
}

// FilterGroupBuilder collects the conditions of one filter group. It exists
// only for the duration of a WhereGroup configure callback.
type FilterGroupBuilder[T any] struct {
	owner *Builder[T]
	group FilterGroup
}

// Where adds one condition to the group. Resolution and normalization follow
// the same rules as Builder.Where.
func (g *FilterGroupBuilder[T]) Where(accessor Accessor[T], operator ComparisonOperator, values ...any) *FilterGroupBuilder[T] {
	cond, ok, err := g.owner.condition(accessor, operator, values)
	if err != nil {
		g.owner.fail(err)
		return g
	}
	if !ok {
		return g
	}
	g.group.Conditions = append(g.group.Conditions, cond)
	return g
}

// WhereGroup nests a sub-group under this group. Empty sub-groups are
// dropped.
func (g *FilterGroupBuilder[T]) WhereGroup(operator LogicalOperator, configure func(*FilterGroupBuilder[T])) *FilterGroupBuilder[T] {
	if configure == nil {
		g.owner.fail(fmt.Errorf("configure function cannot be nil"))
		return g
	}
	if operator != LogicalAnd && operator != LogicalOr {
		g.owner.fail(fmt.Errorf("unsupported logical operator %q", operator))
		return g
	}
	nested := &FilterGroupBuilder[T]{owner: g.owner, group: FilterGroup{Operator: operator}}
	configure(nested)
	if len(nested.group.Conditions) == 0 && len(nested.group.Filters) == 0 {
		return g
	}
	g.group.Filters = append(g.group.Filters, nested.group)
	return g
}

// AndWhereGroup nests a sub-group whose conditions must all hold.
func (g *FilterGroupBuilder[T]) AndWhereGroup(configure func(*FilterGroupBuilder[T])) *FilterGroupBuilder[T] {
	return g.WhereGroup(LogicalAnd, configure)
}

// OrWhereGroup nests a sub-group where any condition may hold.
func (g *FilterGroupBuilder[T]) OrWhereGroup(configure func(*FilterGroupBuilder[T])) *FilterGroupBuilder[T] {
	return g.WhereGroup(LogicalOr, configure)
}
