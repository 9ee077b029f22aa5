package sqlite

import (
	"testing"
	"time"

	"github.com/asaidimu/go-kente/core/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type order struct {
	OrderID    uuid.UUID `kente:"id"`
	CustomerID uuid.UUID
	Status     string
	Total      float64
	Paid       bool
	PlacedAt   time.Time
	Notes      map[string]any
	Items      []orderItem `kente:"relationship=order"`
}

type orderItem struct {
	ItemID   uuid.UUID `kente:"id"`
	OrderID  uuid.UUID
	Sku      string
	Quantity int64
	Order    *order
}

type label struct {
	LabelID uuid.UUID `kente:"id"`
	Name    string
}

// newTestInteractor builds an interactor with provisioned descriptors and no
// database handle. SQL generation never touches the handle, so these tests
// exercise the full compile path without opening a file.
func newTestInteractor(t *testing.T, options *InteractorOptions) (*Interactor, *schema.Registry) {
	t.Helper()
	if options == nil {
		options = DefaultInteractorOptions()
	}
	reg := schema.NewRegistry()
	orderDesc := schema.DescribeIn[order](reg)
	itemDesc := schema.DescribeIn[orderItem](reg)
	labelDesc := schema.DescribeIn[label](reg)
	assert.NotNil(t, orderDesc)
	assert.NotNil(t, itemDesc)
	assert.NotNil(t, labelDesc)

	return &Interactor{
		options: options,
		logger:  zap.NewNop(),
		entities: map[string]*schema.EntityDescriptor{
			"order":     orderDesc,
			"orderitem": itemDesc,
			"label":     labelDesc,
		},
	}, reg
}

func TestCreateTableSQL(t *testing.T) {
	t.Run("full layout", func(t *testing.T) {
		i, reg := newTestInteractor(t, nil)
		sqlText, err := i.createTableSQL(schema.DescribeIn[label](reg))
		assert.NoError(t, err)
		assert.Equal(t,
			"CREATE TABLE IF NOT EXISTS \"label\" (\n"+
				"    \"labelid\" TEXT PRIMARY KEY NOT NULL,\n"+
				"    \"name\" TEXT\n"+
				");",
			sqlText)
	})

	t.Run("column types", func(t *testing.T) {
		i, reg := newTestInteractor(t, nil)
		sqlText, err := i.createTableSQL(schema.DescribeIn[order](reg))
		assert.NoError(t, err)
		assert.Contains(t, sqlText, `"orderid" TEXT PRIMARY KEY NOT NULL`)
		assert.Contains(t, sqlText, `"customerid" TEXT`)
		assert.Contains(t, sqlText, `"total" REAL`)
		assert.Contains(t, sqlText, `"paid" INTEGER`)
		assert.Contains(t, sqlText, `"placedat" TEXT`)
		assert.Contains(t, sqlText, `"notes" TEXT`)
		assert.NotContains(t, sqlText, "items", "navigations do not become columns")
	})

	t.Run("table prefix", func(t *testing.T) {
		i, reg := newTestInteractor(t, &InteractorOptions{TablePrefix: "app_", IfNotExists: true})
		sqlText, err := i.createTableSQL(schema.DescribeIn[label](reg))
		assert.NoError(t, err)
		assert.Contains(t, sqlText, `CREATE TABLE IF NOT EXISTS "app_label"`)
	})

	t.Run("without if not exists", func(t *testing.T) {
		i, reg := newTestInteractor(t, &InteractorOptions{})
		sqlText, err := i.createTableSQL(schema.DescribeIn[label](reg))
		assert.NoError(t, err)
		assert.Contains(t, sqlText, `CREATE TABLE "label"`)
	})

	t.Run("no attributes", func(t *testing.T) {
		i, _ := newTestInteractor(t, nil)
		_, err := i.createTableSQL(&schema.EntityDescriptor{Name: "empty"})
		assert.ErrorContains(t, err, `entity "empty" has no attributes`)
	})
}

func TestCreateIndexSQL(t *testing.T) {
	t.Run("identifier columns only", func(t *testing.T) {
		i, reg := newTestInteractor(t, nil)
		statements := i.createIndexSQL(schema.DescribeIn[order](reg))
		assert.Equal(t, []string{
			`CREATE INDEX IF NOT EXISTS "idx_order_customerid" ON "order" ("customerid");`,
		}, statements)
	})

	t.Run("prefix carries into index names", func(t *testing.T) {
		i, reg := newTestInteractor(t, &InteractorOptions{TablePrefix: "app_"})
		statements := i.createIndexSQL(schema.DescribeIn[order](reg))
		assert.Equal(t, []string{
			`CREATE INDEX IF NOT EXISTS "idx_app_order_customerid" ON "app_order" ("customerid");`,
		}, statements)
	})

	t.Run("no identifier columns", func(t *testing.T) {
		i, reg := newTestInteractor(t, nil)
		assert.Empty(t, i.createIndexSQL(schema.DescribeIn[label](reg)))
	})
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, "INTEGER", columnType(schema.AttributeInteger))
	assert.Equal(t, "INTEGER", columnType(schema.AttributeBoolean))
	assert.Equal(t, "REAL", columnType(schema.AttributeFloat))
	assert.Equal(t, "TEXT", columnType(schema.AttributeString))
	assert.Equal(t, "TEXT", columnType(schema.AttributeUUID))
	assert.Equal(t, "TEXT", columnType(schema.AttributeReference))
	assert.Equal(t, "TEXT", columnType(schema.AttributeDateTime))
	assert.Equal(t, "TEXT", columnType(schema.AttributeJSON))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"order"`, quoteIdentifier("order"))
	assert.Equal(t, `"items.sku"`, quoteIdentifier("items.sku"))
	assert.Equal(t, `"a""b"`, quoteIdentifier(`a"b`))
}
