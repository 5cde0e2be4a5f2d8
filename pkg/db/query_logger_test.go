package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

func TestQueryLoggerReportsSlowAndFailedQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	q := newQueryLogger(logger.New(logger.Options{ServiceName: "db-test", Output: buf}), 10*time.Millisecond)
	query := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	q.Trace(ctx, time.Now(), query, nil)
	q.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast and not-found queries should be quiet, got %s", buf.String())
	}

	q.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	if !bytes.Contains(buf.Bytes(), []byte("slow database query")) || !bytes.Contains(buf.Bytes(), []byte(`"sql":"SELECT 1"`)) {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}

	buf.Reset()
	q.Trace(ctx, time.Now(), query, errors.New("relation missing"))
	if !bytes.Contains(buf.Bytes(), []byte("database query failed")) {
		t.Fatalf("expected failure entry, got %s", buf.String())
	}

	buf.Reset()
	q.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), query, errors.New("ignored"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode should log nothing, got %s", buf.String())
	}
}
