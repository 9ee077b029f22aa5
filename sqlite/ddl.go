package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-kente/core/schema"
)

// InteractorOptions configures table naming and provisioning behavior.
type InteractorOptions struct {
	TablePrefix   string // prepended to every entity name when naming tables
	IfNotExists   bool   // guard CREATE TABLE so re-provisioning is a no-op
	CreateIndexes bool   // index uuid and reference columns on provision
}

// DefaultInteractorOptions returns the options used when New receives nil:
// idempotent table creation and automatic indexes on identifier columns.
func DefaultInteractorOptions() *InteractorOptions {
	return &InteractorOptions{
		IfNotExists:   true,
		CreateIndexes: true,
	}
}

// quoteIdentifier quotes a table or column name for SQLite. Output column
// aliases such as "addresses.city" pass through here as well, so the only
// rewriting is doubling embedded quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// tableName returns the unquoted, prefixed table name for an entity.
func (i *Interactor) tableName(entity string) string {
	return i.options.TablePrefix + entity
}

// createTableSQL renders the CREATE TABLE statement for an entity descriptor.
// Only attribute properties become columns; navigation properties live in the
// target entity's table.
func (i *Interactor) createTableSQL(desc *schema.EntityDescriptor) (string, error) {
	attrs := desc.Attributes()
	if len(attrs) == 0 {
		return "", fmt.Errorf("entity %q has no attributes", desc.Name)
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if i.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(quoteIdentifier(i.tableName(desc.Name)) + " (\n")

	columns := make([]string, 0, len(attrs))
	for _, prop := range attrs {
		parts := []string{quoteIdentifier(prop.Attribute), columnType(prop.Type)}
		if prop.Attribute == desc.IDAttribute {
			parts = append(parts, "PRIMARY KEY", "NOT NULL")
		}
		columns = append(columns, "    "+strings.Join(parts, " "))
	}
	sb.WriteString(strings.Join(columns, ",\n"))
	sb.WriteString("\n);")
	return sb.String(), nil
}

// createIndexSQL renders CREATE INDEX statements for the identifier-shaped
// columns of an entity: uuid and reference attributes other than the primary
// key. Those are the columns joins and lookups hit.
func (i *Interactor) createIndexSQL(desc *schema.EntityDescriptor) []string {
	table := i.tableName(desc.Name)
	var statements []string
	for _, prop := range desc.Attributes() {
		if prop.Attribute == desc.IDAttribute {
			continue
		}
		if prop.Type != schema.AttributeUUID && prop.Type != schema.AttributeReference {
			continue
		}
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
			quoteIdentifier("idx_"+table+"_"+prop.Attribute),
			quoteIdentifier(table),
			quoteIdentifier(prop.Attribute),
		))
	}
	return statements
}

// TableExists reports whether the backing table for an entity exists.
func (i *Interactor) TableExists(ctx context.Context, entity string) (bool, error) {
	var name string
	err := i.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;",
		i.tableName(entity)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// columnType maps an attribute type to its SQLite column type. Times and
// identifiers are stored as TEXT so rows stay readable in the sqlite3 shell;
// RFC 3339 text also orders correctly under ORDER BY.
func columnType(t schema.AttributeType) string {
	switch t {
	case schema.AttributeInteger, schema.AttributeBoolean:
		return "INTEGER"
	case schema.AttributeFloat:
		return "REAL"
	case schema.AttributeString, schema.AttributeUUID, schema.AttributeReference,
		schema.AttributeDateTime, schema.AttributeJSON:
		return "TEXT"
	default:
		return "BLOB"
	}
}
