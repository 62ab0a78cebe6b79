package filesink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/snappy"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	// Extension marks snappy-framed JSON lines.
	Extension = ".jsonl.sz"

	// DefaultEra names the era directory when the run carries no era.
	DefaultEra = "default"

	partitionPrefix  = "event_date="
	unknownPartition = "unknown"
)

// Sink writes batches as partitioned, snappy-framed JSON lines:
// <root>/<era>/<dataset>/event_date=YYYY-MM-DD/<dataset>_<ulid>.jsonl.sz
type Sink struct {
	root string
	log  *zap.Logger
}

func New(root string, log *zap.Logger) (*Sink, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("file sink root is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{root: root, log: log.Named("sink.file")}, nil
}

// Root is the directory partitions are written under.
func (s *Sink) Root() string {
	return s.root
}

func (s *Sink) Write(ctx context.Context, batch event.Batch, dataset, tsField string) error {
	if len(batch) == 0 {
		return nil
	}

	parts := make(map[string]event.Batch)
	for _, r := range batch {
		date, ok := event.EventDate(r, tsField)
		if !ok {
			date = unknownPartition
		}
		parts[date] = append(parts[date], r)
	}

	dates := make([]string, 0, len(parts))
	for d := range parts {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	dir := DatasetDir(s.root, obslogger.EraFromContext(ctx), dataset)
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, partitionPrefix+date, dataset+"_"+ulid.Make().String()+Extension)
		if err := WriteFile(path, parts[date]); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		obslogger.WithContext(ctx, s.log).Debug("sink.file.written",
			zap.String("path", path),
			zap.String("dataset", dataset),
			zap.Int("records", len(parts[date])),
		)
	}
	return nil
}

// DatasetDir is the directory holding every partition of dataset for era.
func DatasetDir(root, era, dataset string) string {
	return filepath.Join(root, EraDir(era), dataset)
}

// EraDir is the directory name of an era.
func EraDir(era string) string {
	s := slug.Make(era)
	if s == "" {
		return DefaultEra
	}
	return s
}

// WriteFile writes batch to path as snappy-framed JSON lines, creating
// parent directories.
func WriteFile(path string, batch event.Batch) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := snappy.NewBufferedWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range batch {
		if err := enc.Encode(event.Encode(r)); err != nil {
			return err
		}
	}
	return w.Close()
}

// ReadFile decodes one partition file.
func ReadFile(path string) (event.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(snappy.NewReader(f))
}

func decode(r io.Reader) (event.Batch, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var out event.Batch
	for {
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, event.Decode(raw))
	}
}

// Files lists the partition files under dir in lexical order, which is
// partition date then write order.
func Files(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), Extension) {
			files = append(files, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadDataset reads every partition of dataset for era.
func ReadDataset(root, era, dataset string) (event.Batch, error) {
	files, err := Files(DatasetDir(root, era, dataset))
	if err != nil {
		return nil, err
	}
	var out event.Batch
	for _, path := range files {
		batch, err := ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}
