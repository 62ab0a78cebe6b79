package sqlsink

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/lifecyclesim/internal/clock"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type staticConn struct {
	db *gorm.DB
}

func (c staticConn) Get() (*gorm.DB, error) { return c.db, nil }
func (staticConn) Dialect() string { return "sqlite" }
func (staticConn) Migrate() bool { return true }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func subscription(id, month string, ts time.Time, extra map[string]any) event.Record {
	r := event.Record{
		event.FieldEventID:      id,
		event.FieldPlan:         "Pro",
		event.FieldEventTimeUTC: ts,
		event.FieldBatchMonth:   month,
	}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func TestWriteLandsRecordsAndSchemaLedger(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(staticConn{db: db}, clock.NewFakeClock(now), nil)
	ctx := obslogger.WithRun(context.Background(), "run-42", "y1")

	june := event.Batch{
		subscription("e1", "2024-06", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), nil),
		subscription("e2", "2024-06", time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), map[string]any{event.FieldReferralCode: nil}),
	}
	require.NoError(t, s.Write(ctx, june, event.DatasetSubscriptions, event.FieldEventTimeUTC))

	august := event.Batch{
		subscription("e3", "2024-08", time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), map[string]any{
			"ingestion_source":      "simulator_v2",
			event.FieldReferralCode: "ref_abc",
		}),
	}
	require.NoError(t, s.Write(ctx, august, event.DatasetSubscriptions, event.FieldEventTimeUTC))

	var rows []RawRecord
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 3)
	assert.Equal(t, "run-42", rows[0].RunID)
	assert.Equal(t, "y1", rows[0].Era)
	assert.Equal(t, "2024-06-03", rows[0].EventDate)
	assert.Equal(t, "2024-08", rows[2].BatchMonth)
	assert.Equal(t, Source, rows[2].Source)
	assert.True(t, rows[0].LoadedAt.Equal(now))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Payload, &payload))
	assert.Equal(t, "2024-06-03T00:00:00", payload[event.FieldEventTimeUTC])

	cols, err := Columns(context.Background(), db, event.DatasetSubscriptions)
	require.NoError(t, err)
	byName := map[string]SchemaColumn{}
	for _, c := range cols {
		byName[c.ColumnName] = c
	}
	require.Contains(t, byName, "ingestion_source")
	assert.Equal(t, "2024-08", byName["ingestion_source"].FirstSeenMonth)
	assert.Equal(t, "2024-06", byName[event.FieldPlan].FirstSeenMonth)
	assert.Equal(t, "timestamp", byName[event.FieldEventTimeUTC].ValueType)
	// The first sighting was null and is kept.
	assert.Equal(t, "2024-06", byName[event.FieldReferralCode].FirstSeenMonth)
	assert.Equal(t, "null", byName[event.FieldReferralCode].ValueType)
}

func TestWriteEmptyBatchSkipsDatabase(t *testing.T) {
	s := New(nil, nil, nil)
	assert.NoError(t, s.Write(context.Background(), nil, event.DatasetPayments, event.FieldPaymentTimeUTC))
}

func TestValueType(t *testing.T) {
	cases := map[string]any{
		"null":      nil,
		"string":    "15.0",
		"number":    15.0,
		"timestamp": time.Now(),
		"boolean":   true,
		"object":    map[string]any{},
	}
	for want, v := range cases {
		if got := ValueType(v); got != want {
			t.Fatalf("ValueType(%T) = %q, want %q", v, got, want)
		}
	}
	assert.Equal(t, "number", ValueType(3))
}
