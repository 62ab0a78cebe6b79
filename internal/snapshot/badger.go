package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/snappy"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"go.uber.org/zap"
)

const badgerKeyPrefix = "snapshot/"

type BadgerConfig struct {
	Path     string
	InMemory bool
	Logger   *zap.Logger
}

type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }

// OpenBadger opens the key-value database backing BadgerStore.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{log: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// BadgerStore keeps each snapshot as one snappy-compressed JSON array under
// snapshot/<ulid>/<era>, so a reverse scan meets the newest first.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Save(_ context.Context, era string, rows event.Batch) error {
	era, err := normalizeEra(era)
	if err != nil {
		return err
	}
	encoded := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		encoded = append(encoded, event.Encode(r))
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	key := []byte(badgerKeyPrefix + ulid.Make().String() + "/" + era)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, snappy.Encode(nil, payload))
	})
}

func (s *BadgerStore) Latest(_ context.Context, exceptEra string) (event.Batch, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(badgerKeyPrefix + "\xff")); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			if eraOfKey(string(item.Key())) == exceptEra {
				continue
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			payload = raw
			return nil
		}
		return nil
	})
	if err != nil || payload == nil {
		return nil, err
	}

	decoded, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out := make(event.Batch, 0, len(raw))
	for _, r := range raw {
		out = append(out, event.Decode(r))
	}
	return out, nil
}

func eraOfKey(key string) string {
	rest := strings.TrimPrefix(key, badgerKeyPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i+1:]
	}
	return ""
}
