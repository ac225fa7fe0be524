package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsNoRowsThroughWrap(t *testing.T) {
	err := fmt.Errorf("scan failed: %w", sql.ErrNoRows)
	if !IsNoRows(err) {
		t.Fatalf("expected wrapped sql.ErrNoRows to be detected")
	}
	if IsNoRows(fmt.Errorf("other")) {
		t.Fatalf("unexpected match")
	}
}

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("exec failed: %w", &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'abc' for key 'submissions.PRIMARY'",
	})
	key, ok := UniqueViolation(err)
	if !ok {
		t.Fatalf("expected unique violation")
	}
	if key != "submissions.PRIMARY" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, ok := UniqueViolation(&mysql.MySQLError{Number: 1045}); ok {
		t.Fatalf("access denied is not a unique violation")
	}
}

func TestRetryTransient(t *testing.T) {
	deadlock := fmt.Errorf("exec failed: %w", &mysql.MySQLError{Number: 1213})

	calls := 0
	err := RetryTransient(context.Background(), 3, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return deadlock
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on the third call, got %v after %d", err, calls)
	}

	calls = 0
	err = RetryTransient(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return sql.ErrNoRows
	})
	if !IsNoRows(err) || calls != 1 {
		t.Fatalf("non-transient errors must not be retried, got %v after %d", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	err = RetryTransient(ctx, 5, func(ctx context.Context) error {
		calls++
		return deadlock
	})
	if err == nil || calls != 1 {
		t.Fatalf("a done context stops retries, got %v after %d", err, calls)
	}
	if IsTransient(fmt.Errorf("plain")) || !IsTransient(deadlock) {
		t.Fatalf("unexpected transient classification")
	}
}
