package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath  string
	era         string
	seed        int64
	outputDir   string
	noCarryOver bool
	sinks       []string
	pdfPath     string

	rootCmd = &cobra.Command{
		Use:   "lifecyclesim",
		Short: "Generate synthetic SaaS lifecycle telemetry with scheduled data-quality faults",
		Long: `lifecyclesim simulates a subscription business month by month, corrupts the
output on a schedule and lands it in file, SQL or Redis sinks.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Simulate one era and write its datasets",
		Args:  cobra.NoArgs,
		RunE:  runSimulation, // Defined in cmd_run.go
	}

	uploadCmd = &cobra.Command{
		Use:   "upload",
		Short: "Upload an era's file-sink output to Google Cloud Storage",
		Args:  cobra.NoArgs,
		RunE:  runUpload, // Defined in cmd_upload.go
	}

	reportCmd = &cobra.Command{
		Use:   "report [manifest.yml]",
		Short: "Render the PDF report of a saved run manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport, // Defined in cmd_report.go
	}
)

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to simulation.yml (defaults to the era preset)")
	runCmd.Flags().StringVar(&era, "era", "", "era preset to run when no config file is found")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "random seed; 0 keeps the configured seed")
	runCmd.Flags().StringVar(&outputDir, "output", "", "file sink root; overrides OUTPUT_DIR")
	runCmd.Flags().BoolVar(&noCarryOver, "no-carry-over", false, "start from a fresh cohort even when a prior era exists")
	runCmd.Flags().StringSliceVar(&sinks, "sink", nil, "sinks to write to: file, sql, redis; overrides SINKS")

	uploadCmd.Flags().StringVar(&era, "era", "", "era whose output to upload")
	uploadCmd.Flags().StringVar(&outputDir, "output", "", "file sink root; overrides OUTPUT_DIR")
	_ = uploadCmd.MarkFlagRequired("era")

	reportCmd.Flags().StringVar(&pdfPath, "pdf", "", "where to write the PDF (defaults next to the manifest)")

	rootCmd.AddCommand(runCmd, uploadCmd, reportCmd)
}
