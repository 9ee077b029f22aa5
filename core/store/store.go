// Package store wraps an Interactor with the conveniences a caller wants at
// the edge: structured logging, lifecycle events around every operation, a
// subscription registry, and typed retrieval glue from records back to
// entities.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-kente/core/query"
	"github.com/asaidimu/go-kente/core/schema"
	"github.com/asaidimu/go-kente/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the event-emitting front of the storage layer. It delegates
// execution to an Interactor and publishes start/success/failed events for
// every operation on a typed event bus.
type Store struct {
	interactor    Interactor
	registry      *schema.Registry
	logger        *zap.Logger
	bus           *events.TypedEventBus[QueryEvent]
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
}

// Options configures a Store. Zero values fall back to the default registry
// and a no-op logger.
type Options struct {
	Registry *schema.Registry
	Logger   *zap.Logger
}

// New creates a Store around the given interactor.
func New(interactor Interactor, opts *Options) (*Store, error) {
	if interactor == nil {
		return nil, fmt.Errorf("interactor cannot be nil")
	}
	bus, err := events.NewTypedEventBus[QueryEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	registry := schema.Default()
	logger := zap.NewNop()
	if opts != nil {
		if opts.Registry != nil {
			registry = opts.Registry
		}
		if opts.Logger != nil {
			logger = opts.Logger
		}
	}

	return &Store{
		interactor:    interactor,
		registry:      registry,
		logger:        logger,
		bus:           bus,
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// Registry returns the registry this store resolves entity types against.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Query executes a compiled query graph and returns the matching records.
func (s *Store) Query(ctx context.Context, expr *query.QueryExpression) ([]schema.Record, error) {
	if expr == nil {
		return nil, fmt.Errorf("query expression cannot be nil")
	}
	s.logger.Debug("executing query", zap.String("entity", expr.Entity))

	result, err := s.withEvents(
		"query",
		QueryExecuteStart,
		QueryExecuteSuccess,
		QueryExecuteFailed,
		expr.Entity,
		nil,
		expr,
		func() (any, error) {
			return s.interactor.Execute(ctx, expr)
		},
	)
	if err != nil {
		return nil, err
	}
	return result.([]schema.Record), nil
}

// Insert writes records for the named entity, returning them with
// backend-assigned values filled in.
func (s *Store) Insert(ctx context.Context, entity string, records []schema.Record) ([]schema.Record, error) {
	if entity == "" {
		return nil, fmt.Errorf("entity name cannot be empty")
	}
	if len(records) == 0 {
		return nil, nil
	}
	s.logger.Debug("inserting records",
		zap.String("entity", entity),
		zap.Int("count", len(records)))

	result, err := s.withEvents(
		"insert",
		RecordInsertStart,
		RecordInsertSuccess,
		RecordInsertFailed,
		entity,
		records,
		nil,
		func() (any, error) {
			return s.interactor.Insert(ctx, entity, records)
		},
	)
	if err != nil {
		return nil, err
	}
	return result.([]schema.Record), nil
}

// Provision prepares backend storage for the described entity types, one
// event cycle per descriptor.
func (s *Store) Provision(ctx context.Context, descs ...*schema.EntityDescriptor) error {
	for _, desc := range descs {
		if desc == nil {
			return fmt.Errorf("descriptor cannot be nil")
		}
		s.logger.Debug("provisioning entity", zap.String("entity", desc.Name))

		d := desc
		_, err := s.withEvents(
			"provision",
			ProvisionStart,
			ProvisionSuccess,
			ProvisionFailed,
			desc.Name,
			desc,
			nil,
			func() (any, error) {
				return nil, s.interactor.Provision(ctx, d)
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RegisterSubscription registers a callback for a store event type. It
// returns a unique id used to unregister the subscription later.
func (s *Store) RegisterSubscription(options RegisterSubscriptionOptions) string {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	unsubscribe := s.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	info := SubscriptionInfo{
		ID:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}
	s.subscriptions[id] = &info

	s.emitEvent(createEventForSubscription(SubscriptionRegister, "register_subscription", options.Event, id))
	return id
}

// UnregisterSubscription removes a subscription by its id.
func (s *Store) UnregisterSubscription(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	info, ok := s.subscriptions[id]
	if !ok {
		return
	}
	info.Unsubscribe()
	delete(s.subscriptions, id)

	s.emitEvent(createEventForSubscription(SubscriptionUnregister, "unregister_subscription", info.Event, id))
}

// Subscriptions returns the currently active subscriptions.
func (s *Store) Subscriptions() []SubscriptionInfo {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}

// Retrieve builds the description, executes it, and decodes the resulting
// records into entities. The store and the builder should share a registry,
// or attribute names may not line up.
func Retrieve[T any](ctx context.Context, s *Store, b *query.Builder[T]) ([]*T, error) {
	if s == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if b == nil {
		return nil, fmt.Errorf("builder cannot be nil")
	}
	expr, err := b.Build()
	if err != nil {
		return nil, err
	}
	records, err := s.Query(ctx, expr)
	if err != nil {
		return nil, err
	}

	desc := schema.DescribeIn[T](s.registry)
	if desc == nil {
		return nil, fmt.Errorf("no descriptor for entity %q", expr.Entity)
	}
	out := make([]*T, 0, len(records))
	for _, record := range records {
		entity := new(T)
		if err := utils.DecodeRecord(desc, record, entity); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", desc.Name, err)
		}
		out = append(out, entity)
	}
	return out, nil
}
