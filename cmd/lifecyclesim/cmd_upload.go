package main

import (
	"fmt"

	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/objectstore"
	"github.com/smallbiznis/lifecyclesim/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func runUpload(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var (
		cfg config.Config
		log *zap.Logger
	)
	app := fx.New(
		fx.Supply(config.Overrides{OutputDir: outputDir}),
		fx.WithLogger(fxLogger),
		config.Module,
		observability.Module,
		fx.Populate(&cfg, &log),
	)
	if err := app.Err(); err != nil {
		return err
	}

	bucket, closeBucket, err := objectstore.NewGCS(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBucket(); err != nil {
			log.Warn("objectstore.close.failed", zap.Error(err))
		}
	}()

	n, err := objectstore.NewUploader(bucket, cfg.GCSPrefix, log).UploadEra(ctx, cfg.OutputDir, era)
	if err != nil {
		return fmt.Errorf("upload era %s: %w", era, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d objects to gs://%s\n", n, cfg.GCSBucket)
	return nil
}
