package store

import (
	"context"

	"github.com/asaidimu/go-kente/core/query"
	"github.com/asaidimu/go-kente/core/schema"
)

// QueryEventType defines the possible event types for store operations.
type QueryEventType string

const (
	QueryExecuteStart      QueryEventType = "query:execute:start"
	QueryExecuteSuccess    QueryEventType = "query:execute:success"
	QueryExecuteFailed     QueryEventType = "query:execute:failed"
	RecordInsertStart      QueryEventType = "record:insert:start"
	RecordInsertSuccess    QueryEventType = "record:insert:success"
	RecordInsertFailed     QueryEventType = "record:insert:failed"
	ProvisionStart         QueryEventType = "provision:start"
	ProvisionSuccess       QueryEventType = "provision:success"
	ProvisionFailed        QueryEventType = "provision:failed"
	SubscriptionRegister   QueryEventType = "subscription:register"
	SubscriptionUnregister QueryEventType = "subscription:unregister"
)

// QueryEvent represents events emitted around store operations.
type QueryEvent struct {
	Type      QueryEventType `json:"type"`               // The type of event (e.g. 'query:execute:start').
	Timestamp int64          `json:"timestamp"`          // When the event occurred (Unix milliseconds).
	Operation string         `json:"operation"`          // The operation being performed (e.g. 'query', 'insert').
	Entity    *string        `json:"entity,omitempty"`   // Logical name of the entity affected (if applicable).
	Input     any            `json:"input,omitempty"`    // Data passed to the operation (if applicable).
	Output    any            `json:"output,omitempty"`   // Data returned by the operation (if applicable).
	Error     *string        `json:"error,omitempty"`    // Error message if the operation failed.
	Issues    []schema.Issue `json:"issues,omitempty"`   // Issues that caused the operation to fail.
	Query     any            `json:"query,omitempty"`    // Compiled query graph used (if applicable).
	Duration  *int64         `json:"duration,omitempty"` // Duration of the operation in milliseconds.
	RowCount  *int64         `json:"rowCount,omitempty"` // Rows returned or written (if applicable).
	Context   map[string]any `json:"context,omitempty"`  // Additional metadata specific to the operation.
}

// EventCallbackFunction handles one store event.
type EventCallbackFunction func(ctx context.Context, event QueryEvent) error

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	ID          *string        `json:"id,omitempty"`
	Event       QueryEventType `json:"event"`                 // The event subscribed to.
	Label       *string        `json:"label,omitempty"`       // Optional short identifier.
	Description *string        `json:"description,omitempty"` // Optional description.
	Unsubscribe func()         `json:"-"`
}

// RegisterSubscriptionOptions defines options for registering a
// subscription. Registration returns an id used to unregister later.
type RegisterSubscriptionOptions struct {
	Event       QueryEventType `json:"event"`
	Label       *string        `json:"label,omitempty"`
	Description *string        `json:"description,omitempty"`
	Callback    EventCallbackFunction
}

// Interactor executes compiled query graphs against a concrete backend.
// Implementations must return row records in result order and key joined
// columns as "<alias>.<attribute>".
type Interactor interface {
	// Execute runs a compiled query and returns the matching records.
	Execute(ctx context.Context, expr *query.QueryExpression) ([]schema.Record, error)
	// Insert writes records for the named entity, returning them with any
	// backend-assigned values (ids in particular) filled in.
	Insert(ctx context.Context, entity string, records []schema.Record) ([]schema.Record, error)
	// Provision prepares backend storage for the described entity types.
	// Provisioning an already-provisioned entity is not an error.
	Provision(ctx context.Context, descs ...*schema.EntityDescriptor) error
}
