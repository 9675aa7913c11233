package convert

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// --- structpb (wire) <-> Record ---

// FromStruct converts a protobuf Struct into a Record. Nil yields an empty record.
func FromStruct(s *structpb.Struct) Record {
	if s == nil {
		return Record{}
	}
	return s.AsMap()
}

// FromStructs converts a list value of structs into records, skipping non-object elements.
func FromStructs(l *structpb.ListValue) []Record {
	if l == nil {
		return nil
	}
	out := make([]Record, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		if s := v.GetStructValue(); s != nil {
			out = append(out, s.AsMap())
		}
	}
	return out
}

// ToStruct converts a Record into a protobuf Struct.
func ToStruct(r Record) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(sanitize(r).(map[string]any))
	if err != nil {
		return nil, fmt.Errorf("record to struct: %w", err)
	}
	return s, nil
}

// ToListValue converts records into a protobuf list of structs.
func ToListValue(rs []Record) (*structpb.ListValue, error) {
	vals := make([]any, 0, len(rs))
	for _, r := range rs {
		vals = append(vals, sanitize(r))
	}
	l, err := structpb.NewList(vals)
	if err != nil {
		return nil, fmt.Errorf("records to list: %w", err)
	}
	return l, nil
}

// sanitize rewrites values structpb cannot represent (json.Number, typed slices/maps).
func sanitize(v any) any {
	switch x := v.(type) {
	case json.Number:
		return string(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = sanitize(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = sanitize(vv)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = vv
		}
		return out
	default:
		return v
	}
}
