package store

import (
	"time"

	"github.com/asaidimu/go-kente/core/schema"
)

func createEvent(
	eventType QueryEventType,
	operation string,
	entity string,
	input any,
	output any,
	queryParam any,
	err *string,
	issues []schema.Issue,
	startTime time.Time,
) QueryEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	var entityPtr *string
	if entity != "" {
		entityPtr = &entity
	}

	return QueryEvent{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Operation: operation,
		Entity:    entityPtr,
		Input:     input,
		Output:    output,
		Error:     err,
		Issues:    issues,
		Query:     queryParam,
		Duration:  duration,
	}
}

func createEventForSubscription(eventType QueryEventType, operation string, subscribed QueryEventType, id string) QueryEvent {
	event := createEvent(eventType, operation, "", nil, nil, nil, nil, nil, time.Time{})
	event.Context = map[string]any{
		"event":          string(subscribed),
		"subscriptionId": id,
	}
	return event
}

func (s *Store) emitEvent(event QueryEvent) {
	if s.bus != nil {
		s.bus.Emit(string(event.Type), event)
	}
}

// withEvents wraps an operation with start, success, and failure events.
// When the operation yields records their count lands on the success event.
func (s *Store) withEvents(
	operation string,
	startEventType QueryEventType,
	successEventType QueryEventType,
	failedEventType QueryEventType,
	entity string,
	input any,
	queryParam any,
	fn func() (any, error),
) (any, error) {
	startTime := time.Now()

	startEvent := createEvent(
		startEventType,
		operation,
		entity,
		input,
		nil,
		queryParam,
		nil,
		nil,
		startTime,
	)
	s.emitEvent(startEvent)

	result, err := fn()

	if err != nil {
		errStr := err.Error()
		failEvent := createEvent(
			failedEventType,
			operation,
			entity,
			input,
			nil,
			queryParam,
			&errStr,
			nil,
			startTime,
		)
		s.emitEvent(failEvent)
		return nil, err
	}

	successEvent := createEvent(
		successEventType,
		operation,
		entity,
		input,
		nil,
		queryParam,
		nil,
		nil,
		startTime,
	)
	if records, ok := result.([]schema.Record); ok {
		count := int64(len(records))
		successEvent.RowCount = &count
	}
	s.emitEvent(successEvent)

	return result, nil
}
