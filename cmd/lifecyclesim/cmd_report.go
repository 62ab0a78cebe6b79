package main

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/lifecyclesim/internal/report"
	"github.com/spf13/cobra"
)

func runReport(cmd *cobra.Command, args []string) error {
	m, err := report.ReadManifest(args[0])
	if err != nil {
		return err
	}

	out := pdfPath
	if out == "" {
		out = strings.TrimSuffix(args[0], report.ManifestExtension) + report.PDFExtension
	}
	if err := report.WritePDF(out, m); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s era %s: %d months, %d users, %d late arrivals\n",
		m.RunID, m.Era, len(m.Months), m.Users, m.Totals.Checks.LateArrivals)
	fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", out)
	return nil
}
