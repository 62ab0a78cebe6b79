package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/sink/filesink"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var ErrMissingBucket = errors.New("gcs_bucket_required")

// Bucket opens writers for object names.
type Bucket interface {
	NewWriter(ctx context.Context, name string) io.WriteCloser
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, name string) io.WriteCloser {
	w := b.handle.Object(name).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.ContentEncoding = "x-snappy-framed"
	return w
}

// NewGCS connects to the configured bucket. The returned close func releases
// the client.
func NewGCS(ctx context.Context, cfg config.Config) (Bucket, func() error, error) {
	if cfg.GCSBucket == "" {
		return nil, nil, ErrMissingBucket
	}
	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		if _, err := os.Stat(cfg.GCSCredentialsFile); err != nil {
			return nil, nil, fmt.Errorf("gcs credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcs client: %w", err)
	}
	return gcsBucket{handle: client.Bucket(cfg.GCSBucket)}, client.Close, nil
}

// Uploader copies file-sink partitions to a bucket, keeping the partition
// layout under a prefix.
type Uploader struct {
	bucket Bucket
	prefix string
	log    *zap.Logger
}

func NewUploader(bucket Bucket, prefix string, log *zap.Logger) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log.Named("objectstore"),
	}
}

// ObjectName maps a file under root to its object name.
func (u *Uploader) ObjectName(root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}
	name := filepath.ToSlash(rel)
	if u.prefix != "" {
		name = path.Join(u.prefix, name)
	}
	return name, nil
}

// UploadEra uploads every partition the file sink wrote for era and returns
// the number of objects written.
func (u *Uploader) UploadEra(ctx context.Context, root, era string) (int, error) {
	files, err := filesink.Files(filepath.Join(root, filesink.EraDir(era)))
	if err != nil {
		return 0, err
	}
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		name, err := u.ObjectName(root, file)
		if err != nil {
			return i, err
		}
		if err := u.upload(ctx, file, name); err != nil {
			return i, err
		}
		u.log.Debug("objectstore.uploaded", zap.String("file", file), zap.String("object", name))
	}
	u.log.Info("objectstore.era.uploaded", zap.String("era", era), zap.Int("objects", len(files)))
	return len(files), nil
}

func (u *Uploader) upload(ctx context.Context, file, name string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	w := u.bucket.NewWriter(ctx, name)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy %s to %s: %w", file, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}
