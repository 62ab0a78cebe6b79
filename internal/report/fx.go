package report

import (
	"strings"

	"github.com/smallbiznis/lifecyclesim/internal/config"
	"github.com/smallbiznis/lifecyclesim/internal/simulation"
	"github.com/smallbiznis/lifecyclesim/internal/sink"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("report",
	fx.Provide(
		newCollector,
		fx.Annotate(
			func(c *Collector) simulation.Observer { return c },
			fx.ResultTags(`group:"observers"`),
		),
		NewWriter,
	),
)

func newCollector(settings simulation.Settings) *Collector {
	return NewCollector(settings.Machine.Catalog)
}

// Writer stores the manifest and PDF of each run under REPORT_DIR.
type Writer struct {
	cfg config.Config
	log *zap.Logger
}

func NewWriter(cfg config.Config, log *zap.Logger) *Writer {
	return &Writer{
		cfg: cfg,
		log: log.Named("report"),
	}
}

// Write builds the manifest of summary, lists the file-sink output when
// that sink is enabled, and writes both the YAML manifest and the PDF.
// It returns the manifest path.
func (w *Writer) Write(summary simulation.Summary, checks *Collector) (string, error) {
	var files []string
	if w.cfg.SinkEnabled(sink.KindFile) {
		var err error
		if files, err = OutputFiles(w.cfg.OutputDir, summary.Era); err != nil {
			return "", err
		}
	}

	m := Build(summary, checks, w.cfg.Sinks, files)
	path := ManifestPath(w.cfg.ReportDir, summary.Era, summary.RunID)
	if err := WriteManifest(path, m); err != nil {
		return "", err
	}
	pdfPath := strings.TrimSuffix(path, ManifestExtension) + PDFExtension
	if err := WritePDF(pdfPath, m); err != nil {
		return "", err
	}

	w.log.Info("report.written",
		zap.String("run_id", summary.RunID),
		zap.String("era", summary.Era),
		zap.String("manifest", path),
		zap.String("pdf", pdfPath),
		zap.Int("files", len(files)),
	)
	return path, nil
}
