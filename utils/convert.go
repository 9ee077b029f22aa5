package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/asaidimu/go-kente/core/schema"
	"github.com/google/uuid"
)

// EncodeRecord converts an entity value into a store record using its
// descriptor. Every attribute property becomes a record key under its
// resolved attribute name; navigation properties (lookups and collections)
// are not attributes and are never encoded.
//
// Values are normalized to their store form: references and ids become bare
// uuids, defined scalar types (status enums and the like) become their
// underlying primitive. Unset sentinels (zero uuid, zero Reference, zero
// time, nil pointer) are omitted so the backend can assign or null them.
//
// The entity must be a struct or pointer to struct of the descriptor's
// type. A JSON-tag round trip would produce the wrong keys here, since
// attribute names follow the descriptor, not json tags.
//
// Example:
//
//	type Contact struct {
//		ID       uuid.UUID `kente:"id"`
//		LastName string
//	}
//	desc := schema.Describe[Contact]()
//	record, err := EncodeRecord(desc, Contact{LastName: "Okoye"})
//	// record is schema.Record{"lastname": "Okoye"}
func EncodeRecord(desc *schema.EntityDescriptor, entity any) (schema.Record, error) {
	if desc == nil {
		return nil, fmt.Errorf("EncodeRecord: descriptor cannot be nil")
	}
	val := reflect.ValueOf(entity)
	if !val.IsValid() {
		return nil, fmt.Errorf("EncodeRecord: entity cannot be nil")
	}
	if val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil, fmt.Errorf("EncodeRecord: entity cannot be a nil pointer")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("EncodeRecord: entity must be a struct or a pointer to a struct, got %s", val.Kind())
	}
	if desc.Type != nil && val.Type() != desc.Type {
		return nil, fmt.Errorf("EncodeRecord: entity type %s does not match descriptor %q", val.Type(), desc.Name)
	}

	record := make(schema.Record, len(desc.Properties))
	for _, prop := range desc.Properties {
		if prop.Kind != schema.PropertyAttribute {
			continue
		}
		if prop.Index < 0 || prop.Index >= val.NumField() {
			continue
		}
		value, ok := encodeValue(val.Field(prop.Index))
		if !ok {
			continue
		}
		record[prop.Attribute] = value
	}
	return record, nil
}

// EncodeRecords encodes a slice of entities with EncodeRecord.
func EncodeRecords[T any](desc *schema.EntityDescriptor, entities []T) ([]schema.Record, error) {
	records := make([]schema.Record, 0, len(entities))
	for i := range entities {
		record, err := EncodeRecord(desc, &entities[i])
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// encodeValue maps one field value onto its store form. The second return
// value is false when the field holds an unset sentinel and should be
// omitted from the record.
func encodeValue(field reflect.Value) (any, bool) {
	switch v := field.Interface().(type) {
	case schema.Reference:
		if v.IsZero() {
			return nil, false
		}
		return v.ID, true
	case uuid.UUID:
		if v == uuid.Nil {
			return nil, false
		}
		return v, true
	case time.Time:
		if v.IsZero() {
			return nil, false
		}
		return v, true
	}
	switch field.Kind() {
	case reflect.Pointer:
		if field.IsNil() {
			return nil, false
		}
		return encodeValue(field.Elem())
	case reflect.String:
		return field.String(), true
	case reflect.Bool:
		return field.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return field.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(field.Uint()), true
	case reflect.Float32, reflect.Float64:
		return field.Float(), true
	default:
		// JSON-typed attributes (maps, slices, plain structs) pass through
		// for the backend to serialize.
		return field.Interface(), true
	}
}

// DecodeRecord populates an entity from a store record using its
// descriptor. It is the inverse of EncodeRecord: each attribute property
// present in the record is converted back to the field's type.
//
// Conversions cover the representations backends actually return: int64
// into sized integer and defined enum types, strings into uuids, times, and
// defined string types, uuids into Reference values (the referenced entity
// name comes from the descriptor), and JSON text into map, slice, or struct
// fields. Keys the descriptor does not know, including joined
// "<alias>.<attribute>" columns, are ignored.
//
// The target must be a non-nil pointer to a struct of the descriptor's
// type.
func DecodeRecord(desc *schema.EntityDescriptor, record schema.Record, target any) error {
	if desc == nil {
		return fmt.Errorf("DecodeRecord: descriptor cannot be nil")
	}
	if record == nil {
		return fmt.Errorf("DecodeRecord: record cannot be nil")
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Pointer || val.IsNil() {
		return fmt.Errorf("DecodeRecord: target must be a non-nil pointer to a struct")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return fmt.Errorf("DecodeRecord: target must point to a struct, got %s", elem.Kind())
	}
	if desc.Type != nil && elem.Type() != desc.Type {
		return fmt.Errorf("DecodeRecord: target type %s does not match descriptor %q", elem.Type(), desc.Name)
	}

	for _, prop := range desc.Properties {
		if prop.Kind != schema.PropertyAttribute {
			continue
		}
		raw, ok := record[prop.Attribute]
		if !ok || raw == nil {
			continue
		}
		if prop.Index < 0 || prop.Index >= elem.NumField() {
			continue
		}
		field := elem.Field(prop.Index)
		if !field.CanSet() {
			continue
		}
		if err := decodeValue(field, raw, prop); err != nil {
			return fmt.Errorf("DecodeRecord: attribute %q: %w", prop.Attribute, err)
		}
	}
	return nil
}

// DecodeRecords decodes a slice of records into entities with DecodeRecord.
func DecodeRecords[T any](desc *schema.EntityDescriptor, records []schema.Record) ([]*T, error) {
	out := make([]*T, 0, len(records))
	for i, record := range records {
		entity := new(T)
		if err := DecodeRecord(desc, record, entity); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, entity)
	}
	return out, nil
}

func decodeValue(field reflect.Value, raw any, prop *schema.PropertyDescriptor) error {
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeValue(field.Elem(), raw, prop)
	}

	switch field.Interface().(type) {
	case schema.Reference:
		id, err := decodeUUID(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(schema.Reference{Entity: prop.References, ID: id}))
		return nil
	case uuid.UUID:
		id, err := decodeUUID(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(id))
		return nil
	case time.Time:
		t, err := decodeTime(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	rawVal := reflect.ValueOf(raw)
	switch field.Kind() {
	case reflect.String:
		switch v := raw.(type) {
		case string:
			field.SetString(v)
			return nil
		case []byte:
			field.SetString(string(v))
			return nil
		}
	case reflect.Bool:
		switch v := raw.(type) {
		case bool:
			field.SetBool(v)
			return nil
		case int64:
			field.SetBool(v != 0)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if isNumericKind(rawVal.Kind()) && rawVal.Type().ConvertibleTo(field.Type()) {
			field.Set(rawVal.Convert(field.Type()))
			return nil
		}
	case reflect.Map, reflect.Slice, reflect.Struct:
		// JSON-typed attributes come back either as serialized text or as
		// the live value the memory backend stored.
		switch v := raw.(type) {
		case []byte:
			return json.Unmarshal(v, field.Addr().Interface())
		case string:
			return json.Unmarshal([]byte(v), field.Addr().Interface())
		}
		if rawVal.Type().AssignableTo(field.Type()) {
			field.Set(rawVal)
			return nil
		}
	}

	if rawVal.IsValid() && rawVal.Type().AssignableTo(field.Type()) {
		field.Set(rawVal)
		return nil
	}
	return fmt.Errorf("cannot decode %T into %s", raw, field.Type())
}

func decodeUUID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", v, err)
		}
		return id, nil
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", v, err)
		}
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("cannot decode %T into uuid", raw)
}

func decodeTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time format %q", v)
	case int64:
		return time.UnixMilli(v), nil
	}
	return time.Time{}, fmt.Errorf("cannot decode %T into time", raw)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
