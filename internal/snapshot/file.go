package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/sink/filesink"
)

const filePrefix = event.DatasetUsers + "_"

// FileStore keeps snapshots as snappy-framed JSON lines:
// <dir>/<era>/users_<ulid>.jsonl.sz. The ulid orders snapshots by save time.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("snapshot dir is required")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(_ context.Context, era string, rows event.Batch) error {
	era, err := normalizeEra(era)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, filesink.EraDir(era), filePrefix+ulid.Make().String()+filesink.Extension)
	if err := filesink.WriteFile(path, rows); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) Latest(_ context.Context, exceptEra string) (event.Batch, error) {
	skip := filesink.EraDir(exceptEra)
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var latestID, latestPath string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == skip {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			id, ok := snapshotID(f.Name())
			if !ok {
				continue
			}
			if id > latestID {
				latestID = id
				latestPath = filepath.Join(s.dir, entry.Name(), f.Name())
			}
		}
	}
	if latestPath == "" {
		return nil, nil
	}
	return filesink.ReadFile(latestPath)
}

func snapshotID(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, filesink.Extension) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), filesink.Extension)
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", false
	}
	return id, true
}
