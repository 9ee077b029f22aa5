package store

import (
	"context"
	"testing"
	"time"

	"github.com/asaidimu/go-kente/core/query"
	"github.com/asaidimu/go-kente/core/schema"
	"github.com/asaidimu/go-kente/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type author struct {
	AuthorID uuid.UUID `kente:"id"`
	Name     string
	Rating   int64
}

// newTestStore provisions a store over the in-memory backend with its own
// registry so tests stay independent of global registrations.
func newTestStore(t *testing.T) (*Store, *schema.Registry) {
	t.Helper()
	reg := schema.NewRegistry()
	desc := schema.DescribeIn[author](reg)
	assert.NotNil(t, desc)

	s, err := New(memory.New(nil), &Options{Registry: reg})
	assert.NoError(t, err)
	assert.NoError(t, s.Provision(context.Background(), desc))
	return s, reg
}

func seedAuthors(t *testing.T, s *Store) []schema.Record {
	t.Helper()
	inserted, err := s.Insert(context.Background(), "author", []schema.Record{
		{"name": "Achebe", "rating": int64(5)},
		{"name": "Borges", "rating": int64(4)},
		{"name": "Calvino", "rating": int64(2)},
	})
	assert.NoError(t, err)
	assert.Len(t, inserted, 3)
	return inserted
}

func TestNew(t *testing.T) {
	t.Run("nil interactor", func(t *testing.T) {
		_, err := New(nil, nil)
		assert.ErrorContains(t, err, "interactor cannot be nil")
	})

	t.Run("defaults", func(t *testing.T) {
		s, err := New(memory.New(nil), nil)
		assert.NoError(t, err)
		assert.Same(t, schema.Default(), s.Registry())
	})

	t.Run("explicit registry", func(t *testing.T) {
		reg := schema.NewRegistry()
		s, err := New(memory.New(nil), &Options{Registry: reg})
		assert.NoError(t, err)
		assert.Same(t, reg, s.Registry())
	})
}

func TestStore_InsertAndQuery(t *testing.T) {
	s, reg := newTestStore(t)
	seedAuthors(t, s)

	expr, err := query.NewBuilderIn[author](reg).
		Where(func(a *author) any { return &a.Rating }, query.ComparisonOperatorGreaterThan, 3).
		OrderBy(func(a *author) any { return &a.Name }).
		Build()
	assert.NoError(t, err)

	records, err := s.Query(context.Background(), expr)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "Achebe", records[0]["name"])
	assert.Equal(t, "Borges", records[1]["name"])
	assert.NotNil(t, records[0]["authorid"], "the backend assigns missing ids")
}

func TestStore_Insert_Validation(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("empty entity name", func(t *testing.T) {
		_, err := s.Insert(context.Background(), "", []schema.Record{{"name": "x"}})
		assert.ErrorContains(t, err, "entity name cannot be empty")
	})

	t.Run("no records is a no-op", func(t *testing.T) {
		records, err := s.Insert(context.Background(), "author", nil)
		assert.NoError(t, err)
		assert.Nil(t, records)
	})
}

func TestStore_Query_NilExpression(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Query(context.Background(), nil)
	assert.ErrorContains(t, err, "query expression cannot be nil")
}

func TestStore_Provision_NilDescriptor(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Provision(context.Background(), nil)
	assert.ErrorContains(t, err, "descriptor cannot be nil")
}

func TestStore_Events(t *testing.T) {
	waitFor := func(t *testing.T, events <-chan QueryEvent) QueryEvent {
		t.Helper()
		select {
		case e := <-events:
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("event was not delivered")
			return QueryEvent{}
		}
	}

	t.Run("insert success", func(t *testing.T) {
		s, _ := newTestStore(t)
		events := make(chan QueryEvent, 4)
		s.RegisterSubscription(RegisterSubscriptionOptions{
			Event: RecordInsertSuccess,
			Callback: func(ctx context.Context, e QueryEvent) error {
				events <- e
				return nil
			},
		})

		seedAuthors(t, s)

		e := waitFor(t, events)
		assert.Equal(t, RecordInsertSuccess, e.Type)
		assert.Equal(t, "insert", e.Operation)
		if assert.NotNil(t, e.Entity) {
			assert.Equal(t, "author", *e.Entity)
		}
		if assert.NotNil(t, e.RowCount) {
			assert.Equal(t, int64(3), *e.RowCount)
		}
		assert.NotNil(t, e.Duration)
	})

	t.Run("query success", func(t *testing.T) {
		s, reg := newTestStore(t)
		seedAuthors(t, s)

		events := make(chan QueryEvent, 4)
		s.RegisterSubscription(RegisterSubscriptionOptions{
			Event: QueryExecuteSuccess,
			Callback: func(ctx context.Context, e QueryEvent) error {
				events <- e
				return nil
			},
		})

		expr, err := query.NewBuilderIn[author](reg).Build()
		assert.NoError(t, err)
		_, err = s.Query(context.Background(), expr)
		assert.NoError(t, err)

		e := waitFor(t, events)
		assert.Equal(t, QueryExecuteSuccess, e.Type)
		if assert.NotNil(t, e.Entity) {
			assert.Equal(t, "author", *e.Entity)
		}
		if assert.NotNil(t, e.RowCount) {
			assert.Equal(t, int64(3), *e.RowCount)
		}
	})

	t.Run("query failure", func(t *testing.T) {
		reg := schema.NewRegistry()
		desc := schema.DescribeIn[author](reg)
		assert.NotNil(t, desc)

		// No provisioning, so executing against the backend fails.
		s, err := New(memory.New(nil), &Options{Registry: reg})
		assert.NoError(t, err)

		events := make(chan QueryEvent, 4)
		s.RegisterSubscription(RegisterSubscriptionOptions{
			Event: QueryExecuteFailed,
			Callback: func(ctx context.Context, e QueryEvent) error {
				events <- e
				return nil
			},
		})

		expr, err := query.NewBuilderIn[author](reg).Build()
		assert.NoError(t, err)
		_, err = s.Query(context.Background(), expr)
		assert.ErrorContains(t, err, "not provisioned")

		e := waitFor(t, events)
		assert.Equal(t, QueryExecuteFailed, e.Type)
		if assert.NotNil(t, e.Error) {
			assert.Contains(t, *e.Error, "not provisioned")
		}
	})
}

func TestStore_Subscriptions(t *testing.T) {
	s, _ := newTestStore(t)
	callback := func(ctx context.Context, e QueryEvent) error { return nil }

	label := "insert audit"
	first := s.RegisterSubscription(RegisterSubscriptionOptions{
		Event:    RecordInsertSuccess,
		Label:    &label,
		Callback: callback,
	})
	second := s.RegisterSubscription(RegisterSubscriptionOptions{
		Event:    QueryExecuteSuccess,
		Callback: callback,
	})
	assert.NotEqual(t, first, second)

	subs := s.Subscriptions()
	assert.Len(t, subs, 2)
	byID := make(map[string]SubscriptionInfo, len(subs))
	for _, sub := range subs {
		if assert.NotNil(t, sub.ID) {
			byID[*sub.ID] = sub
		}
	}
	assert.Equal(t, RecordInsertSuccess, byID[first].Event)
	if assert.NotNil(t, byID[first].Label) {
		assert.Equal(t, "insert audit", *byID[first].Label)
	}

	s.UnregisterSubscription(first)
	subs = s.Subscriptions()
	assert.Len(t, subs, 1)
	assert.Equal(t, QueryExecuteSuccess, subs[0].Event)

	// Unknown ids are ignored.
	s.UnregisterSubscription("no-such-subscription")
	assert.Len(t, s.Subscriptions(), 1)
}

func TestRetrieve(t *testing.T) {
	s, reg := newTestStore(t)
	seedAuthors(t, s)

	t.Run("typed results", func(t *testing.T) {
		b := query.NewBuilderIn[author](reg).
			OrderByDesc(func(a *author) any { return &a.Rating }).
			Top(2)
		authors, err := Retrieve(context.Background(), s, b)
		assert.NoError(t, err)
		assert.Len(t, authors, 2)
		assert.Equal(t, "Achebe", authors[0].Name)
		assert.Equal(t, int64(5), authors[0].Rating)
		assert.Equal(t, "Borges", authors[1].Name)
		assert.NotEqual(t, uuid.Nil, authors[0].AuthorID)
	})

	t.Run("nil store", func(t *testing.T) {
		b := query.NewBuilderIn[author](reg)
		_, err := Retrieve(context.Background(), nil, b)
		assert.ErrorContains(t, err, "store cannot be nil")
	})

	t.Run("nil builder", func(t *testing.T) {
		_, err := Retrieve[author](context.Background(), s, nil)
		assert.ErrorContains(t, err, "builder cannot be nil")
	})

	t.Run("build errors surface", func(t *testing.T) {
		b := query.NewBuilderIn[author](reg).Top(-1)
		_, err := Retrieve(context.Background(), s, b)
		assert.ErrorContains(t, err, "top count must be positive")
	})
}
