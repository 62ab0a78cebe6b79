package filesink

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/event"
	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func payment(id string, ts time.Time, amount any) event.Record {
	return event.Record{
		event.FieldPaymentID:      id,
		event.FieldAmountUSD:      amount,
		event.FieldPaymentTimeUTC: ts,
		event.FieldBatchMonth:     event.FormatBatchMonth(ts),
	}
}

func TestWritePartitionsByTimestampField(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, zap.NewNop())
	require.NoError(t, err)

	ctx := obslogger.WithRun(context.Background(), "run-1", "Y2 Era")
	batch := event.Batch{
		payment("p1", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), 25.0),
		payment("p2", time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC), "25.0"),
		payment("p3", time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC), nil),
		{event.FieldPaymentID: "p4", event.FieldPaymentTimeUTC: nil},
	}
	require.NoError(t, s.Write(ctx, batch, event.DatasetPayments, event.FieldPaymentTimeUTC))

	dir := DatasetDir(root, "Y2 Era", event.DatasetPayments)
	assert.Equal(t, filepath.Join(root, "y2-era", event.DatasetPayments), dir)

	files, err := Files(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Contains(t, files[0], "event_date=2025-03-01")
	assert.Contains(t, files[1], "event_date=2025-03-02")
	assert.Contains(t, files[2], "event_date=unknown")
	for _, f := range files {
		assert.True(t, strings.HasPrefix(filepath.Base(f), event.DatasetPayments+"_"))
		assert.True(t, strings.HasSuffix(f, Extension))
	}

	first, err := ReadFile(files[0])
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "p1", first[0][event.FieldPaymentID])
	assert.Equal(t, "p3", first[1][event.FieldPaymentID])
	ts, ok := first[0].Time(event.FieldPaymentTimeUTC)
	require.True(t, ok)
	assert.True(t, ts.Equal(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))
	assert.Nil(t, first[1][event.FieldAmountUSD])
	assert.True(t, first[1].Has(event.FieldAmountUSD))

	all, err := ReadDataset(root, "Y2 Era", event.DatasetPayments)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "25.0", all[2][event.FieldAmountUSD])
}

func TestWriteEmptyBatchIsNoop(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), event.Batch{}, event.DatasetUsers, event.FieldCreatedAtUTC))

	files, err := Files(root)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDefaultEraAndMissingDir(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, nil)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(context.Background(), event.Batch{payment("p1", ts, 15.0)}, event.DatasetPayments, event.FieldPaymentTimeUTC))

	got, err := ReadDataset(root, "", event.DatasetPayments)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	missing, err := ReadDataset(root, "y9", event.DatasetPayments)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = New("  ", nil)
	assert.Error(t, err)
}
