package db

import (
	"context"
	"fmt"
	"sync"

	obslogger "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(
		FromConfig,
		NewLazy,
	),
)

// Open connects to the configured database with tracing and pool limits applied.
func Open(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialect, &gorm.Config{
		Logger: obslogger.NewGormLogger(log, obslogger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Type, err)
	}
	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, fmt.Errorf("register otelgorm: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	return conn, nil
}

// Lazy opens the database on first use, so runs that only write files never
// need a reachable server.
type Lazy struct {
	cfg Config
	log *zap.Logger

	once sync.Once
	conn *gorm.DB
	err  error
}

func NewLazy(lc fx.Lifecycle, cfg Config, log *zap.Logger) *Lazy {
	l := &Lazy{cfg: cfg, log: log}
	if lc != nil {
		lc.Append(fx.Hook{OnStop: l.Close})
	}
	return l
}

// Get returns the shared connection, opening it on the first call.
func (l *Lazy) Get() (*gorm.DB, error) {
	l.once.Do(func() {
		l.conn, l.err = Open(l.cfg, l.log)
	})
	return l.conn, l.err
}

// Dialect names the configured database type.
func (l *Lazy) Dialect() string {
	return l.cfg.Type
}

// Migrate reports whether schema setup should run on first use.
func (l *Lazy) Migrate() bool {
	return l.cfg.Migrate
}

// Close releases the connection if it was opened.
func (l *Lazy) Close(context.Context) error {
	if l.conn == nil {
		return nil
	}
	sqlDB, err := l.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
