package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UnifiedTimestamp is the wire format for instants: exported data and
// WebSocket payloads always carry {seconds, nanoseconds} pairs regardless
// of how the database driver represents dates.
type UnifiedTimestamp struct {
	Seconds     int64 `json:"seconds" bson:"seconds"`
	Nanoseconds int32 `json:"nanoseconds" bson:"nanoseconds"`
}

// ToUnifiedTimestamp converts a time.Time to the unified wire format.
func ToUnifiedTimestamp(t time.Time) UnifiedTimestamp {
	return UnifiedTimestamp{
		Seconds:     t.Unix(),
		Nanoseconds: int32(t.Nanosecond()),
	}
}

// Time converts back to a time.Time in UTC.
func (t UnifiedTimestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanoseconds)).UTC()
}

// ConvertTimestamps walks an arbitrary decoded document and replaces every
// time.Time and driver date value with a UnifiedTimestamp, recursing into
// maps and slices. Non-date values pass through unchanged.
func ConvertTimestamps(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return ToUnifiedTimestamp(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return ToUnifiedTimestamp(*val)
	case primitive.DateTime:
		return ToUnifiedTimestamp(val.Time())
	case primitive.Timestamp:
		return UnifiedTimestamp{Seconds: int64(val.T), Nanoseconds: 0}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = ConvertTimestamps(inner)
		}
		return out
	case primitive.M:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = ConvertTimestamps(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = ConvertTimestamps(inner)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = ConvertTimestamps(inner)
		}
		return out
	default:
		return v
	}
}
