package query

import (
	"fmt"
	"reflect"
	"time"

	"github.com/asaidimu/go-kente/core/schema"
	"github.com/google/uuid"
)

// normalizeValues normalizes each condition value in order. Slice and array
// values (except byte slices) are flattened one level so operators like "in"
// accept either variadic values or a single collection.
func normalizeValues(values []any) ([]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	normalized := make([]any, 0, len(values))
	for _, value := range values {
		rv := reflect.ValueOf(value)
		if value != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				v, err := normalizeValue(rv.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				normalized = append(normalized, v)
			}
			continue
		}
		v, err := normalizeValue(value)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, v)
	}
	return normalized, nil
}

// normalizeValue maps a caller-supplied condition value onto the plain form
// the store compares against: references become their bare id, defined
// scalar types (status enums and the like) become their underlying
// primitive, and everything else passes through unchanged. A nil value is an
// error; null checks use the null operators instead.
func normalizeValue(value any) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("nil condition value")
	}
	switch v := value.(type) {
	case schema.Reference:
		return v.ID, nil
	case *schema.Reference:
		if v == nil {
			return nil, fmt.Errorf("nil condition value")
		}
		return v.ID, nil
	case uuid.UUID, time.Time, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, []byte:
		return v, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("nil condition value")
		}
		return normalizeValue(rv.Elem().Interface())
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return value, nil
}
