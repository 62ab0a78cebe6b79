package snapshot

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/smallbiznis/lifecyclesim/internal/clock"
	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Store kinds accepted in SNAPSHOT_STORE.
const (
	KindFile   = "file"
	KindSQL    = "sql"
	KindBadger = "badger"
)

// DirName is the directory under OUTPUT_DIR the file store uses.
const DirName = "snapshots"

var Module = fx.Module("snapshot",
	fx.Provide(
		NewStore,
		NewLoader,
	),
)

// NewStore opens the store named by SNAPSHOT_STORE.
func NewStore(lc fx.Lifecycle, cfg config.Config, conn *db.Lazy, log *zap.Logger) (Store, error) {
	switch cfg.SnapshotStore {
	case "", KindFile:
		return NewFileStore(filepath.Join(cfg.OutputDir, DirName))
	case KindSQL:
		return NewSQLStore(conn, clock.Real()), nil
	case KindBadger:
		kv, err := OpenBadger(BadgerConfig{Path: cfg.BadgerDir, Logger: log})
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return kv.Close()
			},
		})
		return NewBadgerStore(kv), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.SnapshotStore)
	}
}

// NewLoader reads the prior era's snapshot for the configured era.
func NewLoader(store Store, sim config.SimulationConfig) Loader {
	return Prior(store, sim.Era)
}
