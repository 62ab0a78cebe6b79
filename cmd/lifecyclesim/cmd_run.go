package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/bwmarrin/snowflake"
	"github.com/schollz/progressbar/v3"
	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/metricspush"
	"github.com/smallbiznis/lifecyclesim/internal/observability"
	"github.com/smallbiznis/lifecyclesim/internal/report"
	"github.com/smallbiznis/lifecyclesim/internal/server"
	"github.com/smallbiznis/lifecyclesim/internal/simulation"
	"github.com/smallbiznis/lifecyclesim/internal/sink"
	"github.com/smallbiznis/lifecyclesim/internal/snapshot"
	"github.com/smallbiznis/lifecyclesim/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runModules is the app graph of one simulation run.
func runModules() fx.Option {
	return fx.Options(
		// Core Infrastructure
		config.Module,
		observability.Module,
		db.Module,
		metricspush.Module,
		server.Module,

		// Simulation
		sink.Module,
		snapshot.Module,
		report.Module,
		simulation.Module,

		fx.Provide(
			registerSnowflake,
			newProgress,
			func(s sink.Sink) simulation.Sink { return s },
			func(l snapshot.Loader) simulation.Loader { return l },
			func(s snapshot.Store) simulation.SnapshotSaver { return s },
		),
	)
}

func fxLogger(log *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: log.Named("fx")}
	l.UseLogLevel(zapcore.DebugLevel)
	return l
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// newProgress drives the terminal bar and the ops server's /healthz.
func newProgress(settings simulation.Settings, ops *server.Progress) simulation.ProgressFunc {
	months := len(settings.Plan.Months())
	ops.Begin(settings.Plan.Era, months)
	bar := progressbar.Default(int64(months), "era "+settings.Plan.Era)
	return func(done, total int) {
		_ = bar.Set(done)
		ops.Update(done, total)
	}
}

func overrides() config.Overrides {
	return config.Overrides{
		ConfigPath:  configPath,
		Era:         era,
		Seed:        seed,
		NoCarryOver: noCarryOver,
		OutputDir:   outputDir,
		Sinks:       sinks,
	}
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		runner    *simulation.Runner
		collector *report.Collector
		writer    *report.Writer
	)
	app := fx.New(
		fx.Supply(overrides()),
		fx.WithLogger(fxLogger),
		runModules(),
		fx.Populate(&runner, &collector, &writer),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	summary, runErr := runner.Run(ctx)
	if runErr == nil {
		var path string
		if path, runErr = writer.Write(summary, collector); runErr == nil {
			printSummary(cmd.OutOrStdout(), summary, path)
		}
	}

	// Stopping flushes the sinks, closes stores and pushes metrics, so it
	// runs even when the simulation failed.
	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printSummary(out io.Writer, summary simulation.Summary, manifest string) {
	fmt.Fprintf(out, "\nrun %s era %s seed %d: %d users (%d carried over)\n",
		summary.RunID, summary.Era, summary.Seed, summary.Users, summary.CarriedOver)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tSCENARIO\tNEW\tACTIVE\tCHURNED\tSUBS\tPAYMENTS\tUSAGE")
	for _, m := range summary.Months {
		scenario := m.Scenario
		if scenario == "" {
			scenario = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			m.Month.Format("2006-01"), scenario, m.New, m.Active, m.Churned,
			m.Written[event.DatasetSubscriptions], m.Written[event.DatasetPayments], m.Written[event.DatasetProduct])
	}
	_ = tw.Flush()

	written := summary.Written()
	datasets := make([]string, 0, len(written))
	for d := range written {
		datasets = append(datasets, d)
	}
	sort.Strings(datasets)
	for _, d := range datasets {
		fmt.Fprintf(out, "%s: %d records\n", d, written[d])
	}
	fmt.Fprintf(out, "manifest: %s\n", manifest)
}
