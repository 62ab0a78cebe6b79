package sqlsink

import (
	"time"

	"gorm.io/datatypes"
)

// RawRecord is one landed record with its payload kept as JSON, so schema
// drift never breaks the insert.
type RawRecord struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	RunID      string         `gorm:"type:varchar(64);not null;index:idx_raw_records_run"`
	Era        string         `gorm:"type:varchar(64);not null"`
	Dataset    string         `gorm:"type:varchar(64);not null;index:idx_raw_records_dataset_date,priority:1"`
	EventDate  string         `gorm:"type:varchar(16);not null;default:'';index:idx_raw_records_dataset_date,priority:2"`
	BatchMonth string         `gorm:"type:varchar(16);not null;default:''"`
	Source     string         `gorm:"type:varchar(64);not null"`
	Payload    datatypes.JSON `gorm:"not null"`
	LoadedAt   time.Time      `gorm:"not null"`
}

func (RawRecord) TableName() string { return "raw_records" }

// SchemaColumn records the first run and month a field was seen in a dataset.
type SchemaColumn struct {
	Dataset        string    `gorm:"type:varchar(64);primaryKey"`
	ColumnName     string    `gorm:"type:varchar(128);primaryKey"`
	ValueType      string    `gorm:"type:varchar(32);not null"`
	FirstSeenMonth string    `gorm:"type:varchar(16);not null"`
	FirstSeenRun   string    `gorm:"type:varchar(64);not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (SchemaColumn) TableName() string { return "raw_schema_columns" }
