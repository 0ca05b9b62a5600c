package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/Ridou/Omnii-One-sub008/internal/platform/neo4jdb"
)

// Querier is the generic parameterized query surface the repos run on. The
// concrete implementation is neo4jdb.Client; tests substitute fakes.
type Querier interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]neo4jdb.Record, error)
	Write(ctx context.Context, cypher string, params map[string]any) ([]neo4jdb.Record, error)
}

// QueryError wraps a failed graph query so callers can branch on the failure
// class. Disambiguation and match lookups recover from these via named
// fallbacks; persistence paths propagate them.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("graph query %s: %v", e.Op, e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

func queryErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &QueryError{Op: op, Err: err}
}

func recString(rec neo4jdb.Record, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}

func recInt(rec neo4jdb.Record, key string) int {
	switch v := rec[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func recFloat(rec neo4jdb.Record, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func recBool(rec neo4jdb.Record, key string) bool {
	if v, ok := rec[key].(bool); ok {
		return v
	}
	return false
}

// recTime accepts both RFC3339 strings (how this service writes timestamps)
// and native temporal values other writers may have stored.
func recTime(rec neo4jdb.Record, key string) *time.Time {
	switch v := rec[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &ts
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return &ts
		}
		return nil
	case time.Time:
		return &v
	case dbtype.Time:
		ts := v.Time()
		return &ts
	case dbtype.LocalDateTime:
		ts := v.Time()
		return &ts
	default:
		return nil
	}
}
