package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/observability"
	obsmiddleware "github.com/smallbiznis/lifecyclesim/internal/observability/logger"
	obstracing "github.com/smallbiznis/lifecyclesim/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ops.server",
	fx.Provide(
		NewProgress,
		NewEngine,
	),
	fx.Invoke(run),
)

// Progress is the state /healthz reports while a run is in flight.
type Progress struct {
	mu    sync.RWMutex
	era   string
	done  int
	total int
}

func NewProgress() *Progress {
	return &Progress{}
}

// Begin records the era being simulated.
func (p *Progress) Begin(era string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.era, p.done, p.total = era, 0, total
}

// Update records months done out of total.
func (p *Progress) Update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done, p.total = done, total
}

func (p *Progress) view() gin.H {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return gin.H{
		"status":      "ok",
		"era":         p.era,
		"months_done": p.done,
		"months":      p.total,
	}
}

func NewEngine(obsCfg observability.Config, log *zap.Logger, gatherer prometheus.Gatherer, progress *Progress) *gin.Engine {
	setGinMode(obsCfg)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log.Named("ops")))
	r.Use(obstracing.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, progress.view())
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

// setGinMode keeps gin quiet unless LOG_LEVEL=debug. Its debug output goes to
// stderr; stdout carries the progress bar and run summary.
func setGinMode(obsCfg observability.Config) {
	gin.DefaultWriter = os.Stderr
	if strings.EqualFold(strings.TrimSpace(obsCfg.LogLevel), "debug") {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}

// run serves the engine on METRICS_ADDR. An empty address disables it.
func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("ops.server.listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("ops.server.failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
