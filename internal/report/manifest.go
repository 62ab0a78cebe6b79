package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smallbiznis/lifecyclesim/internal/event"
	"github.com/smallbiznis/lifecyclesim/internal/simulation"
	"github.com/smallbiznis/lifecyclesim/internal/sink/filesink"
	"gopkg.in/yaml.v3"
)

// ManifestExtension is appended to the run id to name manifest files.
const ManifestExtension = ".yml"

var ErrEmptyManifest = errors.New("empty_manifest")

// Manifest is the on-disk record of one run.
type Manifest struct {
	RunID       string    `yaml:"run_id"`
	Era         string    `yaml:"era"`
	Seed        int64     `yaml:"seed"`
	Start       string    `yaml:"start"`
	End         string    `yaml:"end"`
	CarriedOver int       `yaml:"carried_over"`
	Users       int       `yaml:"users"`
	Sinks       []string  `yaml:"sinks,omitempty"`
	StartedAt   time.Time `yaml:"started_at"`
	FinishedAt  time.Time `yaml:"finished_at"`
	Months      []Month   `yaml:"months"`
	Totals      Totals    `yaml:"totals"`
	Files       []string  `yaml:"files,omitempty"`
}

type Month struct {
	Month      string         `yaml:"month"`
	Index      int            `yaml:"index"`
	Scenario   string         `yaml:"scenario,omitempty"`
	New        int            `yaml:"new"`
	Total      int            `yaml:"total"`
	Active     int            `yaml:"active"`
	Churned    int            `yaml:"churned"`
	Generated  map[string]int `yaml:"generated"`
	Written    map[string]int `yaml:"written"`
	Checks     Checks         `yaml:"checks"`
	DurationMS int64          `yaml:"duration_ms"`
}

type Totals struct {
	Written map[string]int `yaml:"written"`
	Checks  Checks         `yaml:"checks"`
}

// Build assembles the manifest of a finished run. checks may be nil.
func Build(summary simulation.Summary, checks *Collector, sinks, files []string) Manifest {
	m := Manifest{
		RunID:       summary.RunID,
		Era:         summary.Era,
		Seed:        summary.Seed,
		Start:       event.FormatBatchMonth(summary.Start),
		End:         event.FormatBatchMonth(summary.End),
		CarriedOver: summary.CarriedOver,
		Users:       summary.Users,
		Sinks:       sinks,
		StartedAt:   summary.Started.UTC(),
		FinishedAt:  summary.Finished.UTC(),
		Months:      make([]Month, 0, len(summary.Months)),
		Totals:      Totals{Written: summary.Written()},
		Files:       files,
	}
	for _, ms := range summary.Months {
		month := Month{
			Month:      event.FormatBatchMonth(ms.Month),
			Index:      ms.Index,
			Scenario:   ms.Scenario,
			New:        ms.New,
			Total:      ms.Total,
			Active:     ms.Active,
			Churned:    ms.Churned,
			Generated:  ms.Generated,
			Written:    ms.Written,
			DurationMS: ms.Duration.Milliseconds(),
		}
		if checks != nil {
			month.Checks = checks.Checks(ms.Month)
		}
		m.Totals.Checks = m.Totals.Checks.add(month.Checks)
		m.Months = append(m.Months, month)
	}
	return m
}

// OutputFiles lists the file-sink partitions of era relative to root.
func OutputFiles(root, era string) ([]string, error) {
	files, err := filesink.Files(filepath.Join(root, filesink.EraDir(era)))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return nil, err
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out, nil
}

// ManifestPath is where a run's manifest lives under dir.
func ManifestPath(dir, era, runID string) string {
	return filepath.Join(dir, filesink.EraDir(era), runID+ManifestExtension)
}

func WriteManifest(path string, m Manifest) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func ReadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.RunID == "" {
		return Manifest{}, fmt.Errorf("%w: %s", ErrEmptyManifest, path)
	}
	return m, nil
}
