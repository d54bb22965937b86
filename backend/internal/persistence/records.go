package persistence

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	if i, ok := val.(int); ok {
		return i
	}
	return 0
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}

// getTimeFromRecord reads a DateTime or Date property. Strings are parsed with
// layout. A missing value is the zero time.
func getTimeFromRecord(record *neo4j.Record, key, layout string) (time.Time, error) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}, nil
	}
	switch v := val.(type) {
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(layout, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %s %q: %w", key, v, err)
		}
		return t.UTC(), nil
	case time.Time:
		return v.UTC(), nil
	case neo4j.Date:
		return v.Time().UTC(), nil
	case neo4j.LocalDateTime:
		return v.Time().UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unexpected %s value of type %T", key, val)
}
