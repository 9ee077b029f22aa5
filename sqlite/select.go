package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaidimu/go-kente/core/query"
	"github.com/asaidimu/go-kente/core/schema"
	"github.com/google/uuid"
)

// timeFormat is the stored text form of datetime attributes. Fractional
// seconds are zero padded so the text orders chronologically under ORDER BY.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// selectedColumn pairs an output record key with the property whose type
// drives conversion when the column is scanned back.
type selectedColumn struct {
	key  string
	prop *schema.PropertyDescriptor
}

// selectQuery is a compiled SELECT statement with its bind parameters and
// the metadata needed to turn scanned rows into records.
type selectQuery struct {
	sql     string
	params  []any
	columns []selectedColumn
}

// selectCompiler accumulates the pieces of one SELECT statement while
// walking a query expression. The root table is aliased t and each link
// gets l1, l2, ... in depth-first order.
type selectCompiler struct {
	interactor *Interactor
	selects    []string
	joins      []string
	params     []any
	columns    []selectedColumn
	aliases    int
}

// compileSelect translates a query expression into a SELECT statement.
// Joined columns are aliased "<link alias>.<attribute>" so result records
// key them the same way regardless of backend.
func (i *Interactor) compileSelect(expr *query.QueryExpression) (*selectQuery, error) {
	root, err := i.descriptor(expr.Entity)
	if err != nil {
		return nil, err
	}

	c := &selectCompiler{interactor: i}
	c.addColumns("t", "", root, expr.Columns, true)
	if err := c.addLinks("t", expr.Links); err != nil {
		return nil, err
	}
	if len(c.selects) == 0 {
		return nil, fmt.Errorf("no selectable columns for entity %q", expr.Entity)
	}

	var whereSQL string
	if expr.Criteria != nil {
		whereSQL, err = c.buildGroup("t", root, expr.Criteria)
		if err != nil {
			return nil, err
		}
	}

	var orderBy []string
	for _, order := range expr.Orders {
		if _, ok := root.AttributeNamed(order.Attribute); !ok {
			return nil, fmt.Errorf("order attribute %q is not part of entity %q", order.Attribute, root.Name)
		}
		direction := strings.ToUpper(string(order.Direction))
		if direction == "" {
			direction = "ASC"
		}
		orderBy = append(orderBy, fmt.Sprintf("t.%s %s", quoteIdentifier(order.Attribute), direction))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(c.selects, ", "))
	sb.WriteString(" FROM " + quoteIdentifier(i.tableName(root.Name)) + " AS t")
	for _, join := range c.joins {
		sb.WriteString(" " + join)
	}
	if whereSQL != "" {
		sb.WriteString(" WHERE " + whereSQL)
	}
	if len(orderBy) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(orderBy, ", "))
	}
	if expr.Top != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *expr.Top))
	}

	return &selectQuery{sql: sb.String() + ";", params: c.params, columns: c.columns}, nil
}

// addColumns appends the select list entries for one table. Column names
// that do not resolve to an attribute are skipped, matching how projection
// treats unknown keys elsewhere. When forceID is set the entity's id
// attribute is selected even if the column set omits it.
func (c *selectCompiler) addColumns(alias, keyPrefix string, desc *schema.EntityDescriptor, set query.ColumnSet, forceID bool) {
	if set.AllColumns {
		for _, prop := range desc.Attributes() {
			c.addColumn(alias, keyPrefix, prop)
		}
		return
	}

	seen := make(map[string]bool, len(set.Columns))
	for _, name := range set.Columns {
		prop, ok := desc.AttributeNamed(name)
		if !ok || seen[prop.Attribute] {
			continue
		}
		seen[prop.Attribute] = true
		c.addColumn(alias, keyPrefix, prop)
	}
	if forceID && !seen[desc.IDAttribute] {
		if prop, ok := desc.AttributeNamed(desc.IDAttribute); ok {
			c.addColumn(alias, keyPrefix, prop)
		}
	}
}

func (c *selectCompiler) addColumn(alias, keyPrefix string, prop *schema.PropertyDescriptor) {
	key := keyPrefix + prop.Attribute
	c.selects = append(c.selects, fmt.Sprintf("%s.%s AS %s", alias, quoteIdentifier(prop.Attribute), quoteIdentifier(key)))
	c.columns = append(c.columns, selectedColumn{key: key, prop: prop})
}

// addLinks renders one join per link, depth first. Link criteria go into
// the ON clause so they constrain the join rather than the whole result.
// Join attributes are not checked against the descriptor; a join on an
// attribute the schema never declared fails at execution with the
// database's own no-such-column error.
func (c *selectCompiler) addLinks(parentAlias string, links []query.LinkEntity) error {
	for _, link := range links {
		target, err := c.interactor.descriptor(link.Target)
		if err != nil {
			return err
		}

		c.aliases++
		alias := fmt.Sprintf("l%d", c.aliases)

		joinType := link.Type
		if joinType == "" {
			joinType = query.JoinTypeInner
		}
		on := fmt.Sprintf("%s.%s = %s.%s", alias, quoteIdentifier(link.To), parentAlias, quoteIdentifier(link.From))
		if link.Criteria != nil {
			clause, err := c.buildGroup(alias, target, link.Criteria)
			if err != nil {
				return fmt.Errorf("link %q: %w", link.Alias, err)
			}
			if clause != "" {
				on += " AND " + clause
			}
		}
		c.joins = append(c.joins, fmt.Sprintf("%s JOIN %s AS %s ON %s",
			strings.ToUpper(string(joinType)), quoteIdentifier(c.interactor.tableName(link.Target)), alias, on))

		c.addColumns(alias, link.Alias+".", target, link.Columns, false)
		if err := c.addLinks(alias, link.Links); err != nil {
			return err
		}
	}
	return nil
}

// buildGroup renders a filter group as a parenthesized clause. Empty groups
// render as an empty string and are dropped by the caller.
func (c *selectCompiler) buildGroup(alias string, desc *schema.EntityDescriptor, group *query.FilterGroup) (string, error) {
	var operator string
	switch group.Operator {
	case query.LogicalAnd:
		operator = "AND"
	case query.LogicalOr:
		operator = "OR"
	default:
		return "", fmt.Errorf("unsupported logical operator %q", group.Operator)
	}

	var clauses []string
	for _, cond := range group.Conditions {
		clause, err := c.buildCondition(alias, desc, cond)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	for idx := range group.Filters {
		clause, err := c.buildGroup(alias, desc, &group.Filters[idx])
		if err != nil {
			return "", err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "(" + strings.Join(clauses, " "+operator+" ") + ")", nil
}

// buildCondition renders one comparison against an aliased column.
func (c *selectCompiler) buildCondition(alias string, desc *schema.EntityDescriptor, cond query.Condition) (string, error) {
	prop, ok := desc.AttributeNamed(cond.Attribute)
	if !ok {
		return "", fmt.Errorf("attribute %q is not part of entity %q", cond.Attribute, desc.Name)
	}
	accessor := alias + "." + quoteIdentifier(prop.Attribute)

	switch cond.Operator {
	case query.ComparisonOperatorNull:
		return accessor + " IS NULL", nil
	case query.ComparisonOperatorNotNull:
		return accessor + " IS NOT NULL", nil
	case query.ComparisonOperatorIn, query.ComparisonOperatorNotIn:
		if len(cond.Values) == 0 {
			// Membership in an empty set is decidable without the database.
			if cond.Operator == query.ComparisonOperatorIn {
				return "1=0", nil
			}
			return "1=1", nil
		}
		for _, v := range cond.Values {
			c.params = append(c.params, bindValue(v))
		}
		placeholders := strings.Repeat("?,", len(cond.Values)-1) + "?"
		keyword := "IN"
		if cond.Operator == query.ComparisonOperatorNotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", accessor, keyword, placeholders), nil
	}

	if len(cond.Values) == 0 {
		return "", fmt.Errorf("operator %q requires a value for attribute %q", cond.Operator, cond.Attribute)
	}
	value := bindValue(cond.Values[0])

	switch cond.Operator {
	case query.ComparisonOperatorEqual:
		c.params = append(c.params, value)
		return accessor + " = ?", nil
	case query.ComparisonOperatorNotEqual:
		c.params = append(c.params, value)
		return accessor + " != ?", nil
	case query.ComparisonOperatorGreaterThan:
		c.params = append(c.params, value)
		return accessor + " > ?", nil
	case query.ComparisonOperatorGreaterEqual:
		c.params = append(c.params, value)
		return accessor + " >= ?", nil
	case query.ComparisonOperatorLessThan:
		c.params = append(c.params, value)
		return accessor + " < ?", nil
	case query.ComparisonOperatorLessEqual:
		c.params = append(c.params, value)
		return accessor + " <= ?", nil
	case query.ComparisonOperatorLike:
		c.params = append(c.params, fmt.Sprintf("%v", value))
		return accessor + " LIKE ?", nil
	case query.ComparisonOperatorBeginsWith:
		c.params = append(c.params, fmt.Sprintf("%v", value)+"%")
		return accessor + " LIKE ?", nil
	case query.ComparisonOperatorEndsWith:
		c.params = append(c.params, "%"+fmt.Sprintf("%v", value))
		return accessor + " LIKE ?", nil
	default:
		return "", fmt.Errorf("unsupported comparison operator %q", cond.Operator)
	}
}

// bindValue converts condition values the driver cannot bind directly into
// their stored text forms.
func bindValue(v any) any {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String()
	case time.Time:
		return t.UTC().Format(timeFormat)
	case schema.Reference:
		return t.ID.String()
	default:
		return v
	}
}
