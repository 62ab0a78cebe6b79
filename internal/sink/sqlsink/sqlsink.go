package sqlsink

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/clock"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/migration"
	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// Source tags every landed row.
	Source = "lifecyclesim"

	insertBatchSize = 500
)

// Conn hands out the database lazily. *db.Lazy satisfies it.
type Conn interface {
	Get() (*gorm.DB, error)
	Dialect() string
	Migrate() bool
}

// Sink lands batches into raw_records and keeps the raw_schema_columns
// ledger of when each field first appeared.
type Sink struct {
	conn  Conn
	clock clock.Clock
	log   *zap.Logger

	migrateOnce sync.Once
	migrateErr  error
}

func New(conn Conn, clk clock.Clock, log *zap.Logger) *Sink {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{conn: conn, clock: clk, log: log.Named("sink.sql")}
}

func (s *Sink) db(ctx context.Context) (*gorm.DB, error) {
	conn, err := s.conn.Get()
	if err != nil {
		return nil, err
	}
	if s.conn.Migrate() {
		s.migrateOnce.Do(func() {
			s.migrateErr = migration.Ensure(conn, s.conn.Dialect(), &RawRecord{}, &SchemaColumn{})
		})
		if s.migrateErr != nil {
			return nil, s.migrateErr
		}
	}
	return conn.WithContext(ctx), nil
}

func (s *Sink) Write(ctx context.Context, batch event.Batch, dataset, tsField string) error {
	if len(batch) == 0 {
		return nil
	}
	conn, err := s.db(ctx)
	if err != nil {
		return err
	}

	runID := obslogger.RunIDFromContext(ctx)
	era := obslogger.EraFromContext(ctx)
	now := s.clock.Now()

	rows := make([]RawRecord, 0, len(batch))
	for _, r := range batch {
		payload, err := json.Marshal(event.Encode(r))
		if err != nil {
			return fmt.Errorf("encode %s record: %w", dataset, err)
		}
		date, _ := event.EventDate(r, tsField)
		month, _ := r.String(event.FieldBatchMonth)
		rows = append(rows, RawRecord{
			RunID:      runID,
			Era:        era,
			Dataset:    dataset,
			EventDate:  date,
			BatchMonth: month,
			Source:     Source,
			Payload:    datatypes.JSON(payload),
			LoadedAt:   now,
		})
	}

	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return err
		}
		return recordColumns(tx, batch, dataset, runID, now)
	})
	if err != nil {
		return err
	}

	obslogger.WithContext(ctx, s.log).Debug("sink.sql.written",
		zap.String("dataset", dataset),
		zap.Int("records", len(rows)),
	)
	return nil
}

// recordColumns adds the fields of batch not yet in the ledger. Existing
// entries keep their first sighting.
func recordColumns(tx *gorm.DB, batch event.Batch, dataset, runID string, now time.Time) error {
	seen := make(map[string]SchemaColumn)
	for _, r := range batch {
		month, _ := r.String(event.FieldBatchMonth)
		for field, v := range r {
			col, ok := seen[field]
			if !ok {
				seen[field] = SchemaColumn{
					Dataset:        dataset,
					ColumnName:     field,
					ValueType:      ValueType(v),
					FirstSeenMonth: month,
					FirstSeenRun:   runID,
					CreatedAt:      now,
				}
				continue
			}
			if col.ValueType == valueNull && v != nil {
				col.ValueType = ValueType(v)
				seen[field] = col
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	cols := make([]SchemaColumn, 0, len(names))
	for _, name := range names {
		cols = append(cols, seen[name])
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&cols).Error
}

const valueNull = "null"

// ValueType names the JSON type a field value lands as.
func ValueType(v any) string {
	switch v.(type) {
	case nil:
		return valueNull
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64, float32, float64:
		return "number"
	case time.Time:
		return "timestamp"
	default:
		return "object"
	}
}

// Columns returns the schema ledger of dataset ordered by first sighting.
func Columns(ctx context.Context, conn *gorm.DB, dataset string) ([]SchemaColumn, error) {
	var cols []SchemaColumn
	err := conn.WithContext(ctx).
		Where("dataset = ?", dataset).
		Order("first_seen_month ASC, column_name ASC").
		Find(&cols).Error
	return cols, err
}
