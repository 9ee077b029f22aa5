// Package query builds store query graphs from typed descriptions. The
// fluent Builder resolves field accessors against entity descriptors and
// compiles the accumulated columns, filter groups, and relationship
// expansions into a QueryExpression: a tree of query, filter, and link nodes
// an Interactor executes against the store.
package query

// LogicalOperator combines the members of a filter group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// ComparisonOperator is one of the store's fixed condition operators.
type ComparisonOperator string

const (
	ComparisonOperatorEqual        ComparisonOperator = "eq"
	ComparisonOperatorNotEqual     ComparisonOperator = "ne"
	ComparisonOperatorLike         ComparisonOperator = "like"
	ComparisonOperatorGreaterThan  ComparisonOperator = "gt"
	ComparisonOperatorGreaterEqual ComparisonOperator = "ge"
	ComparisonOperatorLessThan     ComparisonOperator = "lt"
	ComparisonOperatorLessEqual    ComparisonOperator = "le"
	ComparisonOperatorIn           ComparisonOperator = "in"
	ComparisonOperatorNotIn        ComparisonOperator = "not-in"
	ComparisonOperatorNull         ComparisonOperator = "null"
	ComparisonOperatorNotNull      ComparisonOperator = "not-null"
	ComparisonOperatorBeginsWith   ComparisonOperator = "begins-with"
	ComparisonOperatorEndsWith     ComparisonOperator = "ends-with"
)

var comparisonOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEqual:        {},
	ComparisonOperatorNotEqual:     {},
	ComparisonOperatorLike:         {},
	ComparisonOperatorGreaterThan:  {},
	ComparisonOperatorGreaterEqual: {},
	ComparisonOperatorLessThan:     {},
	ComparisonOperatorLessEqual:    {},
	ComparisonOperatorIn:           {},
	ComparisonOperatorNotIn:        {},
	ComparisonOperatorNull:         {},
	ComparisonOperatorNotNull:      {},
	ComparisonOperatorBeginsWith:   {},
	ComparisonOperatorEndsWith:     {},
}

// IsValid reports whether the operator belongs to the store's operator set.
func (op ComparisonOperator) IsValid() bool {
	_, ok := comparisonOperators[op]
	return ok
}

// GetComparisonOperators returns the set of valid comparison operators.
func GetComparisonOperators() map[ComparisonOperator]struct{} {
	operators := make(map[ComparisonOperator]struct{}, len(comparisonOperators))
	for op := range comparisonOperators {
		operators[op] = struct{}{}
	}
	return operators
}

// SortDirection for result ordering.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// Order sorts the result set by one attribute.
type Order struct {
	Attribute string        `json:"attribute"`
	Direction SortDirection `json:"direction"`
}

// JoinType for link nodes. The compiler only emits inner joins; the other
// values exist for executors with a wider surface.
type JoinType string

const (
	JoinTypeInner JoinType = "inner"
	JoinTypeLeft  JoinType = "left"
	JoinTypeRight JoinType = "right"
	JoinTypeFull  JoinType = "full"
)

// Condition is a single attribute comparison: attribute name, operator, and
// the normalized values the operator applies to.
type Condition struct {
	Attribute string             `json:"attribute"`
	Operator  ComparisonOperator `json:"operator"`
	Values    []any              `json:"values,omitempty"`
}

// FilterGroup combines conditions and nested groups under one logical
// operator. A group in a compiled graph always has at least one condition or
// sub-filter; empty groups are dropped before compilation.
type FilterGroup struct {
	Operator   LogicalOperator `json:"operator"`
	Conditions []Condition     `json:"conditions,omitempty"`
	Filters    []FilterGroup   `json:"filters,omitempty"`
}

// ColumnSet is a column projection. AllColumns set means every attribute of
// the entity; otherwise Columns lists attribute names in selection order.
type ColumnSet struct {
	AllColumns bool     `json:"allColumns,omitempty"`
	Columns    []string `json:"columns,omitempty"`
}

// LinkEntity is the compiled form of a relationship expansion: a sub-query
// joined to its parent on a from/to attribute pair. From names an attribute
// on the source (parent) entity, To an attribute on the target. Alias is the
// lowercased navigation member the expansion was built from; executors key
// joined columns as "<alias>.<attribute>".
type LinkEntity struct {
	Source   string       `json:"source"`
	Target   string       `json:"target"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Type     JoinType     `json:"type"`
	Alias    string       `json:"alias,omitempty"`
	Columns  ColumnSet    `json:"columns"`
	Criteria *FilterGroup `json:"criteria,omitempty"`
	Links    []LinkEntity `json:"links,omitempty"`
}

// QueryExpression is the root of a compiled query graph. A nil Criteria
// means no filter at all; an empty criteria node is never produced.
type QueryExpression struct {
	Entity   string       `json:"entity"`
	Columns  ColumnSet    `json:"columns"`
	Criteria *FilterGroup `json:"criteria,omitempty"`
	Orders   []Order      `json:"orders,omitempty"`
	Links    []LinkEntity `json:"links,omitempty"`
	Top      *int64       `json:"top,omitempty"`
}

// NewCondition builds a condition from an attribute, operator, and values.
func NewCondition(attribute string, operator ComparisonOperator, values ...any) Condition {
	return Condition{Attribute: attribute, Operator: operator, Values: values}
}

// NewFilterGroup builds a group holding the given conditions.
func NewFilterGroup(operator LogicalOperator, conditions ...Condition) FilterGroup {
	return FilterGroup{Operator: operator, Conditions: conditions}
}
