package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

func newBufferedQueryLogger(threshold time.Duration) (gormlogger.Interface, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("info"), Output: buf})
	return newQueryLogger(logg, threshold), buf
}

func sqlFn(query string) func() (string, int64) {
	return func() (string, int64) { return query, 1 }
}

func TestQueryLoggerReportsSlowStatements(t *testing.T) {
	ql, buf := newBufferedQueryLogger(10 * time.Millisecond)

	ql.Trace(context.Background(), time.Now().Add(-50*time.Millisecond), sqlFn("UPDATE users SET credits_balance = credits_balance - 4"), nil)

	if !strings.Contains(buf.String(), "db.slow_query") || !strings.Contains(buf.String(), "credits_balance") {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}
}

func TestQueryLoggerIgnoresFastAndNotFound(t *testing.T) {
	ql, buf := newBufferedQueryLogger(time.Second)

	ql.Trace(context.Background(), time.Now(), sqlFn("SELECT 1"), nil)
	ql.Trace(context.Background(), time.Now(), sqlFn("SELECT * FROM generation_jobs"), gorm.ErrRecordNotFound)

	if buf.Len() != 0 {
		t.Fatalf("expected nothing logged, got %s", buf.String())
	}
}

func TestQueryLoggerFailures(t *testing.T) {
	ql, buf := newBufferedQueryLogger(time.Second)

	ql.Trace(context.Background(), time.Now(), sqlFn("INSERT INTO credit_ledger"), errors.New("UNIQUE constraint failed: credit_ledger.ref_id"))
	if buf.Len() != 0 {
		t.Fatalf("unique violations log at debug only, got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now(), sqlFn("INSERT INTO orders"), errors.New("connection reset"))
	if !strings.Contains(buf.String(), "db.query_failed") || !strings.Contains(buf.String(), "connection reset") {
		t.Fatalf("expected failure entry, got %s", buf.String())
	}
}

func TestQueryLoggerSilentMode(t *testing.T) {
	ql, buf := newBufferedQueryLogger(time.Nanosecond)
	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now().Add(-time.Second), sqlFn("SELECT 1"), errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode must not log, got %s", buf.String())
	}
}
