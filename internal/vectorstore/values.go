package vectorstore

import (
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// valueFrom converts a Go value to a Qdrant payload value.
// Nested maps and slices become struct and list values, which is how the
// payload schema's nested metadata/content blocks are stored.
func valueFrom(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case time.Time:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val.UTC().Format(time.RFC3339Nano)}}
	case map[string]interface{}:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, nested := range val {
			fields[k] = valueFrom(nested)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	case []interface{}:
		items := make([]*qdrant.Value, len(val))
		for i, nested := range val {
			items[i] = valueFrom(nested)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: items}}}
	case []string:
		items := make([]*qdrant.Value, len(val))
		for i, s := range val {
			items[i] = valueFrom(s)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: items}}}
	default:
		// Unsupported types are stored as null rather than dropped, so the
		// key survives round trips.
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	}
}

// anyFrom converts a Qdrant payload value back to a Go value.
func anyFrom(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StructValue:
		m := make(map[string]interface{}, len(val.StructValue.GetFields()))
		for k, nested := range val.StructValue.GetFields() {
			m[k] = anyFrom(nested)
		}
		return m
	case *qdrant.Value_ListValue:
		items := make([]interface{}, len(val.ListValue.GetValues()))
		for i, nested := range val.ListValue.GetValues() {
			items[i] = anyFrom(nested)
		}
		return items
	default:
		return nil
	}
}

// payloadFrom converts a Qdrant payload map to a Go map.
func payloadFrom(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	m := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		m[k] = anyFrom(v)
	}
	return m
}

// buildFilter converts a filter map into Qdrant match conditions.
// All conditions are ANDed; the tenant condition is always among them.
func buildFilter(filters map[string]interface{}) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		var match *qdrant.Match
		switch v := value.(type) {
		case string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
		case bool:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
		case int:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		case int64:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
		case []string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: v}}}
		default:
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: key, Match: match},
			},
		})
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}
