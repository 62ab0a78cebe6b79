package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/lifecyclesim/internal/event"
)

// PDFExtension names the rendered report next to its manifest.
const PDFExtension = ".pdf"

var (
	headerText = props.Text{Style: fontstyle.Bold, Size: 9}
	cellText   = props.Text{Size: 9}
	numberText = props.Text{Size: 9, Align: align.Right}
)

// RenderPDF lays out the run summary and the monthly table.
func RenderPDF(m Manifest) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	doc := maroto.New(cfg)

	doc.AddRow(12,
		text.NewCol(12, "Simulation run "+m.Era, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	doc.AddRow(26,
		col.New(6).Add(
			text.New("Run id: "+m.RunID, props.Text{Top: 0}),
			text.New("Window: "+m.Start+" to "+m.End, props.Text{Top: 5}),
			text.New("Seed: "+strconv.FormatInt(m.Seed, 10), props.Text{Top: 10}),
			text.New("Finished: "+m.FinishedAt.Format("2006-01-02 15:04:05 MST"), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Users: "+strconv.Itoa(m.Users), props.Text{Top: 0}),
			text.New("Carried over: "+strconv.Itoa(m.CarriedOver), props.Text{Top: 5}),
			text.New(fmt.Sprintf("Late arrivals: %d", m.Totals.Checks.LateArrivals), props.Text{Top: 10}),
			text.New(fmt.Sprintf("Over usage limit: %d", m.Totals.Checks.OverUsageLimit), props.Text{Top: 15}),
		),
	)

	doc.AddRow(10,
		text.NewCol(1, "Month", headerText),
		text.NewCol(3, "Scenario", headerText),
		text.NewCol(1, "New", withAlign(headerText)),
		text.NewCol(1, "Active", withAlign(headerText)),
		text.NewCol(1, "Churned", withAlign(headerText)),
		text.NewCol(1, "Subs", withAlign(headerText)),
		text.NewCol(1, "Payments", withAlign(headerText)),
		text.NewCol(1, "Usage", withAlign(headerText)),
		text.NewCol(1, "Late", withAlign(headerText)),
		text.NewCol(1, "Failed", withAlign(headerText)),
	)
	doc.AddRow(1, line.NewCol(12))

	for _, month := range m.Months {
		scenario := month.Scenario
		if scenario == "" {
			scenario = "-"
		}
		doc.AddRow(8,
			text.NewCol(1, month.Month, cellText),
			text.NewCol(3, scenario, cellText),
			text.NewCol(1, strconv.Itoa(month.New), numberText),
			text.NewCol(1, strconv.Itoa(month.Active), numberText),
			text.NewCol(1, strconv.Itoa(month.Churned), numberText),
			text.NewCol(1, strconv.Itoa(month.Written[event.DatasetSubscriptions]), numberText),
			text.NewCol(1, strconv.Itoa(month.Written[event.DatasetPayments]), numberText),
			text.NewCol(1, strconv.Itoa(month.Written[event.DatasetProduct]), numberText),
			text.NewCol(1, strconv.Itoa(month.Checks.LateArrivals), numberText),
			text.NewCol(1, strconv.Itoa(month.Checks.FailedWithoutCancel), numberText),
		)
	}

	doc.AddRow(1, line.NewCol(12))
	datasets := make([]string, 0, len(m.Totals.Written))
	for dataset := range m.Totals.Written {
		datasets = append(datasets, dataset)
	}
	sort.Strings(datasets)
	for _, dataset := range datasets {
		doc.AddRow(8,
			col.New(8),
			text.NewCol(2, dataset, cellText),
			text.NewCol(2, strconv.Itoa(m.Totals.Written[dataset]), numberText),
		)
	}

	out, err := doc.Generate()
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return out.GetBytes(), nil
}

// WritePDF renders m to path.
func WritePDF(path string, m Manifest) error {
	raw, err := RenderPDF(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func withAlign(p props.Text) props.Text {
	p.Align = align.Right
	return p
}
