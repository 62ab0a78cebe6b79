package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/report"
	"github.com/smallbiznis/lifecyclesim/internal/simulation"
	"go.uber.org/fx"
)

func TestRunGraphIsComplete(t *testing.T) {
	if err := fx.ValidateApp(fx.Supply(config.Overrides{Era: "y1"}), runModules()); err != nil {
		t.Fatalf("run graph: %v", err)
	}
}

func sampleSummary() simulation.Summary {
	month := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return simulation.Summary{
		RunID: "77",
		Era:   "y1",
		Seed:  7,
		Start: month,
		End:   month,
		Users: 3,
		Months: []simulation.MonthSummary{{
			Month:   month,
			Index:   1,
			New:     3,
			Total:   3,
			Active:  3,
			Written: map[string]int{event.DatasetSubscriptions: 3, event.DatasetProduct: 9},
		}},
	}
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, sampleSummary(), "reports/y1/77.yml")

	got := out.String()
	for _, want := range []string{
		"run 77 era y1 seed 7: 3 users (0 carried over)",
		"2024-01",
		"product_events: 9 records",
		"manifest: reports/y1/77.yml",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestReportCommandRendersPDF(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "77"+report.ManifestExtension)
	if err := report.WriteManifest(manifest, report.Build(sampleSummary(), nil, nil, nil)); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"report", manifest})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("report command: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "77"+report.PDFExtension)); err != nil {
		t.Fatalf("expected pdf next to manifest: %v", err)
	}
	if !strings.Contains(out.String(), "run 77 era y1: 1 months, 3 users") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}
