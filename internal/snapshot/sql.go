package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/lifecyclesim/internal/clock"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/migration"
	"github.com/smallbiznis/lifecyclesim/internal/sink/sqlsink"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const rowBatchSize = 500

type Snapshot struct {
	ID        string    `gorm:"type:varchar(26);primaryKey"`
	Era       string    `gorm:"type:varchar(64);not null;index:idx_era_snapshots_era,priority:1"`
	RowCount  int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_era_snapshots_era,priority:2"`
}

func (Snapshot) TableName() string { return "era_snapshots" }

type SnapshotRow struct {
	SnapshotID string         `gorm:"type:varchar(26);primaryKey"`
	Seq        int            `gorm:"primaryKey;autoIncrement:false"`
	UserID     string         `gorm:"type:varchar(64);not null"`
	Payload    datatypes.JSON `gorm:"not null"`
}

func (SnapshotRow) TableName() string { return "era_snapshot_rows" }

// SQLStore keeps snapshots in era_snapshots and era_snapshot_rows.
type SQLStore struct {
	conn  sqlsink.Conn
	clock clock.Clock

	migrateOnce sync.Once
	migrateErr  error
}

func NewSQLStore(conn sqlsink.Conn, clk clock.Clock) *SQLStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &SQLStore{conn: conn, clock: clk}
}

func (s *SQLStore) db(ctx context.Context) (*gorm.DB, error) {
	conn, err := s.conn.Get()
	if err != nil {
		return nil, err
	}
	if s.conn.Migrate() {
		s.migrateOnce.Do(func() {
			s.migrateErr = migration.Ensure(conn, s.conn.Dialect(), &Snapshot{}, &SnapshotRow{})
		})
		if s.migrateErr != nil {
			return nil, s.migrateErr
		}
	}
	return conn.WithContext(ctx), nil
}

func (s *SQLStore) Save(ctx context.Context, era string, rows event.Batch) error {
	era, err := normalizeEra(era)
	if err != nil {
		return err
	}
	conn, err := s.db(ctx)
	if err != nil {
		return err
	}

	snap := Snapshot{
		ID:        ulid.Make().String(),
		Era:       era,
		RowCount:  len(rows),
		CreatedAt: s.clock.Now(),
	}
	out := make([]SnapshotRow, 0, len(rows))
	for i, r := range rows {
		payload, err := json.Marshal(event.Encode(r))
		if err != nil {
			return fmt.Errorf("encode snapshot row: %w", err)
		}
		userID, _ := r.String(event.FieldUserID)
		out = append(out, SnapshotRow{
			SnapshotID: snap.ID,
			Seq:        i,
			UserID:     userID,
			Payload:    datatypes.JSON(payload),
		})
	}

	return conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snap).Error; err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		return tx.CreateInBatches(out, rowBatchSize).Error
	})
}

func (s *SQLStore) Latest(ctx context.Context, exceptEra string) (event.Batch, error) {
	conn, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	err = conn.Where("era <> ?", exceptEra).
		Order("created_at DESC, id DESC").
		Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []SnapshotRow
	if err := conn.Where("snapshot_id = ?", snap.ID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(event.Batch, 0, len(rows))
	for _, row := range rows {
		var raw map[string]any
		if err := json.Unmarshal(row.Payload, &raw); err != nil {
			return nil, fmt.Errorf("decode snapshot row %d: %w", row.Seq, err)
		}
		out = append(out, event.Decode(raw))
	}
	return out, nil
}
