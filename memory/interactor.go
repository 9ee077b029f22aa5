// Package memory provides an in-process Interactor that executes compiled
// query graphs directly over Go values. It exists for tests, examples, and
// callers that want store semantics without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/asaidimu/go-kente/core/query"
	"github.com/asaidimu/go-kente/core/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Interactor keeps one record table per provisioned entity and executes
// query graphs with nested-loop inner joins. All operations are safe for
// concurrent use.
type Interactor struct {
	mu      sync.RWMutex
	tables  map[string]*table
	logger  *zap.Logger
	matcher *query.Matcher
}

type table struct {
	idAttribute string
	records     []schema.Record
}

// New creates an empty in-memory interactor. A nil logger disables logging.
func New(logger *zap.Logger) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{
		tables:  make(map[string]*table),
		logger:  logger,
		matcher: query.NewMatcher(logger),
	}
}

// Provision creates a table per descriptor. Provisioning an existing entity
// keeps its records.
func (m *Interactor) Provision(ctx context.Context, descs ...*schema.EntityDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, desc := range descs {
		if desc == nil {
			return fmt.Errorf("descriptor cannot be nil")
		}
		if _, ok := m.tables[desc.Name]; ok {
			continue
		}
		m.tables[desc.Name] = &table{idAttribute: desc.IDAttribute}
		m.logger.Debug("provisioned entity", zap.String("entity", desc.Name))
	}
	return nil
}

// Insert stores copies of the given records, assigning a fresh uuid to any
// record whose id attribute is missing. Returned records reflect assigned
// ids and are themselves copies.
func (m *Interactor) Insert(ctx context.Context, entity string, records []schema.Record) ([]schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[entity]
	if !ok {
		return nil, fmt.Errorf("entity %q is not provisioned", entity)
	}

	out := make([]schema.Record, 0, len(records))
	for _, record := range records {
		stored := copyRecord(record)
		if needsID(stored, t.idAttribute) {
			stored[t.idAttribute] = uuid.New()
		}
		t.records = append(t.records, stored)
		out = append(out, copyRecord(stored))
	}
	m.logger.Debug("inserted records",
		zap.String("entity", entity),
		zap.Int("count", len(out)))
	return out, nil
}

// Execute runs a compiled query graph: root criteria first, then inner
// joins per link, then ordering and the row cap. Joined columns are keyed
// "<alias>.<attribute>"; the root entity's id attribute is always present
// in result records.
func (m *Interactor) Execute(ctx context.Context, expr *query.QueryExpression) ([]schema.Record, error) {
	if expr == nil {
		return nil, fmt.Errorf("query expression cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[expr.Entity]
	if !ok {
		return nil, fmt.Errorf("entity %q is not provisioned", expr.Entity)
	}

	var results []schema.Record
	for _, record := range t.records {
		matched, err := m.matcher.Matches(record, expr.Criteria)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		rows, err := m.expandLinks(record, expr.Links)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			results = append(results, projectRecord(row, expr.Columns, t.idAttribute))
		}
	}

	if len(expr.Orders) > 0 {
		sortRecords(results, expr.Orders)
	}
	if expr.Top != nil && int64(len(results)) > *expr.Top {
		results = results[:*expr.Top]
	}
	return results, nil
}

// expandLinks joins one base record against each link in turn. Inner join
// semantics: a record with no match on any link produces no rows; several
// matches multiply rows.
func (m *Interactor) expandLinks(base schema.Record, links []query.LinkEntity) ([]schema.Record, error) {
	rows := []schema.Record{copyRecord(base)}
	for i := range links {
		link := &links[i]
		t, ok := m.tables[link.Target]
		if !ok {
			return nil, fmt.Errorf("entity %q is not provisioned", link.Target)
		}

		var joined []schema.Record
		for _, row := range rows {
			for _, candidate := range t.records {
				if !query.ValuesEqual(row[link.From], candidate[link.To]) {
					continue
				}
				matched, err := m.matcher.Matches(candidate, link.Criteria)
				if err != nil {
					return nil, err
				}
				if !matched {
					continue
				}
				childRows, err := m.expandLinks(candidate, link.Links)
				if err != nil {
					return nil, err
				}
				for _, childRow := range childRows {
					joined = append(joined, mergeRow(row, childRow, link))
				}
			}
		}
		rows = joined
		if len(rows) == 0 {
			return nil, nil
		}
	}
	return rows, nil
}

// mergeRow copies the selected child columns into the parent row under
// "<alias>.<attribute>" keys. Keys a deeper link already aliased keep their
// alias, so every expansion's columns stay addressable under its own name.
func mergeRow(parent, child schema.Record, link *query.LinkEntity) schema.Record {
	row := copyRecord(parent)
	for key, value := range child {
		if strings.Contains(key, ".") {
			row[key] = value
			continue
		}
		if !link.Columns.AllColumns && !containsColumn(link.Columns.Columns, key) {
			continue
		}
		row[link.Alias+"."+key] = value
	}
	return row
}

// projectRecord keeps the requested root columns plus every aliased joined
// column. The root id attribute is always kept.
func projectRecord(row schema.Record, columns query.ColumnSet, idAttribute string) schema.Record {
	if columns.AllColumns {
		return row
	}
	out := make(schema.Record, len(columns.Columns)+1)
	for key, value := range row {
		if strings.Contains(key, ".") || key == idAttribute || containsColumn(columns.Columns, key) {
			out[key] = value
		}
	}
	return out
}

func sortRecords(records []schema.Record, orders []query.Order) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, order := range orders {
			cmp, ok := query.CompareValues(records[i][order.Attribute], records[j][order.Attribute])
			if !ok || cmp == 0 {
				continue
			}
			if order.Direction == query.SortDirectionDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func containsColumn(columns []string, name string) bool {
	for _, column := range columns {
		if column == name {
			return true
		}
	}
	return false
}

func copyRecord(record schema.Record) schema.Record {
	out := make(schema.Record, len(record))
	for key, value := range record {
		out[key] = value
	}
	return out
}

func needsID(record schema.Record, idAttribute string) bool {
	value, ok := record[idAttribute]
	if !ok || value == nil {
		return true
	}
	if id, ok := value.(uuid.UUID); ok {
		return id == uuid.Nil
	}
	return false
}
