package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/cache"
	"github.com/Majnu04/doflow-sub001/internal/common/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, mr
}

// fakeDB answers queries by matching a substring of the statement and the first argument.
type fakeDB struct {
	mu       sync.Mutex
	rows     map[string]map[string][][]interface{}
	affected int64
	execErr  error
	// execErrs fail the next statements in order before execErr applies.
	execErrs []error
	queries  []string
	execs    []string
	execArgs [][]interface{}
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string]map[string][][]interface{}), affected: 1}
}

func (f *fakeDB) add(pattern, key string, rows ...[]interface{}) {
	if f.rows[pattern] == nil {
		f.rows[pattern] = make(map[string][][]interface{})
	}
	f.rows[pattern][key] = append(f.rows[pattern][key], rows...)
}

func (f *fakeDB) lookup(query string, args []interface{}) [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	key := ""
	if len(args) > 0 {
		key = fmt.Sprint(args[0])
	}
	for pattern, byKey := range f.rows {
		if strings.Contains(query, pattern) {
			return byKey[key]
		}
	}
	return nil
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return &fakeRows{rows: f.lookup(query, args), pos: -1}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	rows := f.lookup(query, args)
	if len(rows) == 0 {
		return fakeRow{err: fmt.Errorf("scan: %w", sql.ErrNoRows)}
	}
	return fakeRow{values: rows[0]}
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, query)
	f.execArgs = append(f.execArgs, args)
	if len(f.execErrs) > 0 {
		err := f.execErrs[0]
		f.execErrs = f.execErrs[1:]
		return nil, err
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult{affected: f.affected}, nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeResult struct{ affected int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	rows [][]interface{}
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error { return assign(dest, r.rows[r.pos]) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

func assign(dest, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		case *int64:
			*d = v.(int64)
		case *time.Time:
			*d = v.(time.Time)
		case *sql.NullString:
			if v == nil {
				*d = sql.NullString{}
			} else {
				*d = sql.NullString{String: v.(string), Valid: true}
			}
		case *sql.NullTime:
			if v == nil {
				*d = sql.NullTime{}
			} else {
				*d = sql.NullTime{Time: v.(time.Time), Valid: true}
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}
