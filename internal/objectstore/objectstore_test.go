package objectstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"github.com/smallbiznis/lifecyclesim/internal/sink/filesink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBucket struct {
	objects map[string][]byte
}

type memWriter struct {
	bytes.Buffer
	name   string
	bucket *memBucket
}

func (w *memWriter) Close() error {
	w.bucket.objects[w.name] = w.Bytes()
	return nil
}

func (b *memBucket) NewWriter(_ context.Context, name string) io.WriteCloser {
	return &memWriter{name: name, bucket: b}
}

func TestUploadEraKeepsPartitionLayout(t *testing.T) {
	root := t.TempDir()
	fs, err := filesink.New(root, nil)
	require.NoError(t, err)

	ctx := obslogger.WithRun(context.Background(), "run", "y1")
	batch := event.Batch{
		{event.FieldEventID: "a", event.FieldEventTimeUTC: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{event.FieldEventID: "b", event.FieldEventTimeUTC: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, fs.Write(ctx, batch, event.DatasetProduct, event.FieldEventTimeUTC))
	other := obslogger.WithRun(context.Background(), "run", "y2")
	require.NoError(t, fs.Write(other, batch, event.DatasetProduct, event.FieldEventTimeUTC))

	bucket := &memBucket{objects: map[string][]byte{}}
	n, err := NewUploader(bucket, "/raw/", nil).UploadEra(context.Background(), root, "y1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names := make([]string, 0, len(bucket.objects))
	for name, body := range bucket.objects {
		names = append(names, name)
		assert.NotEmpty(t, body)
	}
	sort.Strings(names)
	assert.Regexp(t, `^raw/y1/product_events/event_date=2024-01-02/product_events_[0-9A-Z]{26}\.jsonl\.sz$`, names[0])
	assert.Regexp(t, `^raw/y1/product_events/event_date=2024-01-03/`, names[1])
}

func TestUploadEraWithoutOutput(t *testing.T) {
	bucket := &memBucket{objects: map[string][]byte{}}
	n, err := NewUploader(bucket, "", nil).UploadEra(context.Background(), t.TempDir(), "y1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewGCSRequiresBucket(t *testing.T) {
	_, _, err := NewGCS(context.Background(), config.Config{})
	assert.ErrorIs(t, err, ErrMissingBucket)

	_, _, err = NewGCS(context.Background(), config.Config{GCSBucket: "b", GCSCredentialsFile: "/nope/key.json"})
	assert.Error(t, err)
}
