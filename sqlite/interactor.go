// Package sqlite executes query expressions against a SQLite database.
// Provisioning creates one table per entity descriptor, inserts are
// parameterized multi-row statements, and expressions compile to a single
// SELECT with one join per link. Joined columns come back keyed
// "<alias>.<attribute>", the same shape the memory backend produces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-kente/core/query"
	"github.com/asaidimu/go-kente/core/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dbRunner is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Helpers take it instead of a concrete handle so provisioning can run the
// same statements inside a transaction.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Interactor executes query expressions against a SQLite database. It keeps
// the descriptor of every provisioned entity so scanned columns can be
// converted back to their attribute types.
type Interactor struct {
	db      *sql.DB
	options *InteractorOptions
	logger  *zap.Logger

	mu       sync.RWMutex
	entities map[string]*schema.EntityDescriptor
}

// New creates an interactor on an open database handle. The caller owns the
// handle. Nil options select DefaultInteractorOptions and a nil logger
// disables logging.
func New(db *sql.DB, options *InteractorOptions, logger *zap.Logger) (*Interactor, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	if options == nil {
		options = DefaultInteractorOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{
		db:       db,
		options:  options,
		logger:   logger,
		entities: make(map[string]*schema.EntityDescriptor),
	}, nil
}

func (i *Interactor) descriptor(entity string) (*schema.EntityDescriptor, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	desc, ok := i.entities[entity]
	if !ok {
		return nil, fmt.Errorf("entity %q is not provisioned", entity)
	}
	return desc, nil
}

// Provision creates the table and indexes for each descriptor. All DDL for
// one call runs in a single transaction. Re-provisioning an entity is a
// no-op at the database when IfNotExists is set.
func (i *Interactor) Provision(ctx context.Context, descs ...*schema.EntityDescriptor) error {
	if len(descs) == 0 {
		return nil
	}

	var statements []string
	for _, desc := range descs {
		if desc == nil {
			return fmt.Errorf("descriptor cannot be nil")
		}
		tableSQL, err := i.createTableSQL(desc)
		if err != nil {
			return err
		}
		statements = append(statements, tableSQL)
		if i.options.CreateIndexes {
			statements = append(statements, i.createIndexSQL(desc)...)
		}
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin provisioning transaction: %w", err)
	}
	if err := execStatements(ctx, tx, statements); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			i.logger.Error("provisioning rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit provisioning transaction: %w", err)
	}

	i.mu.Lock()
	for _, desc := range descs {
		i.entities[desc.Name] = desc
	}
	i.mu.Unlock()
	for _, desc := range descs {
		i.logger.Debug("provisioned entity", zap.String("entity", desc.Name))
	}
	return nil
}

func execStatements(ctx context.Context, r dbRunner, statements []string) error {
	for _, stmt := range statements {
		if _, err := r.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// Insert writes records into an entity's table and returns the stored rows.
// Records missing an id attribute get a generated uuid; the inputs are not
// mutated. The whole batch is one INSERT statement, so it is atomic.
func (i *Interactor) Insert(ctx context.Context, entity string, records []schema.Record) ([]schema.Record, error) {
	desc, err := i.descriptor(entity)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	prepared := make([]schema.Record, len(records))
	for idx, record := range records {
		stored := make(schema.Record, len(record)+1)
		for k, v := range record {
			stored[k] = v
		}
		if needsID(stored, desc.IDAttribute) {
			stored[desc.IDAttribute] = uuid.New()
		}
		prepared[idx] = stored
	}

	sqlText, params, cols, err := i.insertSQL(desc, prepared)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("executing insert", zap.String("sql", sqlText), zap.Int("records", len(prepared)))
	results, err := i.queryRecords(ctx, i.db, sqlText, params, cols)
	if err != nil {
		i.logger.Error("insert failed", zap.String("entity", entity), zap.Error(err))
		return nil, err
	}
	return results, nil
}

// insertSQL renders a multi-row INSERT over the union of attributes present
// in the batch. The RETURNING list names every attribute explicitly so the
// scanned columns match the descriptor regardless of table history.
func (i *Interactor) insertSQL(desc *schema.EntityDescriptor, records []schema.Record) (string, []any, []selectedColumn, error) {
	present := make(map[string]bool)
	for _, record := range records {
		for key := range record {
			prop, ok := desc.AttributeNamed(key)
			if !ok {
				return "", nil, nil, fmt.Errorf("attribute %q is not part of entity %q", key, desc.Name)
			}
			present[prop.Attribute] = true
		}
	}

	var fields []*schema.PropertyDescriptor
	for _, prop := range desc.Attributes() {
		if present[prop.Attribute] {
			fields = append(fields, prop)
		}
	}
	if len(fields) == 0 {
		return "", nil, nil, fmt.Errorf("no attributes to insert for entity %q", desc.Name)
	}

	quoted := make([]string, len(fields))
	for idx, prop := range fields {
		quoted[idx] = quoteIdentifier(prop.Attribute)
	}

	var params []any
	values := make([]string, 0, len(records))
	row := "(" + strings.Repeat("?, ", len(fields)-1) + "?)"
	for _, record := range records {
		for _, prop := range fields {
			value, err := bindAttribute(prop, record[prop.Attribute])
			if err != nil {
				return "", nil, nil, err
			}
			params = append(params, value)
		}
		values = append(values, row)
	}

	attrs := desc.Attributes()
	returning := make([]string, 0, len(attrs))
	cols := make([]selectedColumn, 0, len(attrs))
	for _, prop := range attrs {
		returning = append(returning, quoteIdentifier(prop.Attribute))
		cols = append(cols, selectedColumn{key: prop.Attribute, prop: prop})
	}

	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING %s;",
		quoteIdentifier(i.tableName(desc.Name)),
		strings.Join(quoted, ", "),
		strings.Join(values, ", "),
		strings.Join(returning, ", "))
	return sqlText, params, cols, nil
}

// bindAttribute converts a record value into a driver-bindable parameter.
// JSON attributes are serialized to text; everything else follows the
// condition value conversions.
func bindAttribute(prop *schema.PropertyDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if prop.Type == schema.AttributeJSON {
		switch t := value.(type) {
		case string:
			return t, nil
		case []byte:
			return string(t), nil
		default:
			b, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("could not serialize attribute %q: %w", prop.Attribute, err)
			}
			return string(b), nil
		}
	}
	return bindValue(value), nil
}

// Execute compiles and runs a query expression, returning one record per
// result row in database order.
func (i *Interactor) Execute(ctx context.Context, expr *query.QueryExpression) ([]schema.Record, error) {
	if expr == nil {
		return nil, fmt.Errorf("query expression cannot be nil")
	}

	q, err := i.compileSelect(expr)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("executing select", zap.String("sql", q.sql), zap.Any("params", q.params))
	records, err := i.queryRecords(ctx, i.db, q.sql, q.params, q.columns)
	if err != nil {
		i.logger.Error("select failed", zap.String("entity", expr.Entity), zap.Error(err))
		return nil, err
	}
	return records, nil
}

// queryRecords runs a statement that yields rows and converts each row into
// a record. NULL columns are left out of the record, matching how absent
// keys behave in the memory backend.
func (i *Interactor) queryRecords(ctx context.Context, r dbRunner, sqlText string, params []any, cols []selectedColumn) ([]schema.Record, error) {
	rows, err := r.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var records []schema.Record
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for idx := range ptrs {
		ptrs[idx] = &raw[idx]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record := make(schema.Record, len(cols))
		for idx, col := range cols {
			if raw[idx] == nil {
				continue
			}
			value, err := convertColumn(col.prop, raw[idx])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col.key, err)
			}
			record[col.key] = value
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return records, nil
}

// convertColumn turns a scanned value back into the Go type the attribute
// declares. Byte slices are converted eagerly because the driver may reuse
// their backing memory on the next scan.
func convertColumn(prop *schema.PropertyDescriptor, raw any) (any, error) {
	switch prop.Type {
	case schema.AttributeUUID, schema.AttributeReference:
		switch v := raw.(type) {
		case string:
			u, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("invalid uuid text: %w", err)
			}
			return u, nil
		case []byte:
			u, err := uuid.ParseBytes(v)
			if err != nil {
				return nil, fmt.Errorf("invalid uuid text: %w", err)
			}
			return u, nil
		}
	case schema.AttributeDateTime:
		switch v := raw.(type) {
		case string:
			return parseStoredTime(v)
		case []byte:
			return parseStoredTime(string(v))
		case int64:
			return time.UnixMilli(v).UTC(), nil
		case time.Time:
			return v, nil
		}
	case schema.AttributeBoolean:
		switch v := raw.(type) {
		case int64:
			return v != 0, nil
		case bool:
			return v, nil
		}
	case schema.AttributeInteger:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		}
	case schema.AttributeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		}
	case schema.AttributeString, schema.AttributeJSON:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	default:
		return raw, nil
	}
	return nil, fmt.Errorf("cannot read %T as %s", raw, prop.Type)
}

func parseStoredTime(s string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

func needsID(record schema.Record, idAttribute string) bool {
	value, ok := record[idAttribute]
	if !ok || value == nil {
		return true
	}
	if u, ok := value.(uuid.UUID); ok && u == uuid.Nil {
		return true
	}
	return false
}
