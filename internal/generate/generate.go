// Package generate runs the full dataset pipeline: simulate, write, and
// optionally record a manifest, load a SQL sink, publish to a blob store,
// and export metrics.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/blob"
	"github.com/nvandessel/lifesim/internal/config"
	"github.com/nvandessel/lifesim/internal/logging"
	"github.com/nvandessel/lifesim/internal/manifest"
	"github.com/nvandessel/lifesim/internal/metrics"
	"github.com/nvandessel/lifesim/internal/pathutil"
	"github.com/nvandessel/lifesim/internal/simulation"
	"github.com/nvandessel/lifesim/internal/sink"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

// Options configures a pipeline run.
type Options struct {
	Config *config.LifesimConfig

	// Version is recorded in the manifest's generator field.
	Version string

	// Catalog defaults to archetype.Default().
	Catalog *archetype.Catalog

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Report summarizes a finished pipeline run.
type Report struct {
	RunID      string                  `json:"run_id"`
	Seed       uint64                  `json:"seed"`
	Subjects   int                     `json:"subjects"`
	Days       int                     `json:"days"`
	Output     *trajectory.WriteResult `json:"output"`
	Manifest   string                  `json:"manifest,omitempty"`
	Events     string                  `json:"events,omitempty"`
	Archetypes map[string]int          `json:"archetypes"`
	Sink       *SinkReport             `json:"sink,omitempty"`
	Published  []blob.Info             `json:"published,omitempty"`
	Metrics    string                  `json:"metrics,omitempty"`
	Elapsed    time.Duration           `json:"elapsed_ns"`
}

// SinkReport describes rows loaded into a SQL sink.
type SinkReport struct {
	Driver string `json:"driver"`
	Rows   int    `json:"rows"`
}

// Run executes the pipeline. The output file is written before any optional
// step, so a sink or publish failure leaves a complete dataset on disk.
func Run(ctx context.Context, opts Options) (*Report, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	out := cfg.Output.Path
	format, err := resolveFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	// Fail before simulating if the destination is unusable.
	if !cfg.Output.CreateDirs {
		if err := pathutil.CheckWritableDir(filepath.Dir(out)); err != nil {
			return nil, err
		}
	}

	seed, seeded := resolveSeed(cfg.Simulation.Seed)
	if !seeded {
		logger.Info("no seed configured, using random seed", "seed", seed)
	}

	start := now()
	runID := sink.NewRunID(start, seed)
	report := &Report{
		RunID:    runID,
		Seed:     seed,
		Subjects: cfg.Simulation.Subjects,
		Days:     cfg.Simulation.Days,
		Metrics:  cfg.Metrics.Textfile,
	}

	if cfg.Output.CreateDirs {
		if err := mkdirOutput(out); err != nil {
			return nil, err
		}
	}

	events := logging.NewEventLogger(logging.EventsPath(out), cfg.Logging.Level)
	defer events.Close()
	if events != nil {
		report.Events = logging.EventsPath(out)
	}
	events.Log(map[string]any{
		"event":    "run_started",
		"run_id":   runID,
		"seed":     strconv.FormatUint(seed, 10),
		"subjects": cfg.Simulation.Subjects,
		"days":     cfg.Simulation.Days,
		"workers":  cfg.Simulation.Workers,
	})

	m := metrics.New()

	res, err := simulation.Run(ctx, simulation.Params{
		Subjects: cfg.Simulation.Subjects,
		Days:     cfg.Simulation.Days,
		Seed:     seed,
		Workers:  cfg.Simulation.Workers,
		Catalog:  opts.Catalog,
		Logger:   logger,
		Observer: simulation.Observers(m, events),
	})
	if err != nil {
		events.Log(map[string]any{"event": "run_failed", "run_id": runID, "error": err.Error()})
		return nil, err
	}
	m.ObserveRun(res.Elapsed, now())
	report.Archetypes = res.Archetypes

	if rep := res.Table.Validate(); !rep.OK() {
		return nil, fmt.Errorf("generated table failed validation: %w", rep.Err())
	}

	wr, err := trajectory.WriteFile(out, res.Table, trajectory.WriteOptions{Format: format})
	if err != nil {
		events.Log(map[string]any{"event": "run_failed", "run_id": runID, "error": err.Error()})
		return nil, err
	}
	report.Output = wr
	m.ObserveWrite(string(wr.Format), wr.Bytes)
	logger.Info("dataset written",
		"path", wr.Path, "format", wr.Format, "rows", wr.Rows, "bytes", wr.Bytes)

	files := []string{wr.Path}
	if cfg.Output.Manifest {
		mpath := manifest.Path(out)
		mf := manifest.New(manifest.Run{
			Generator:  generator(opts.Version),
			Seed:       seed,
			Subjects:   cfg.Simulation.Subjects,
			Days:       cfg.Simulation.Days,
			Archetypes: res.Archetypes,
		}, wr)
		mf.Metadata = map[string]string{"run_id": runID}
		if err := manifest.Write(mpath, mf); err != nil {
			return nil, err
		}
		report.Manifest = mpath
		files = append(files, mpath)
	}

	if cfg.Sink.Enabled() {
		if err := loadSink(ctx, cfg.Sink, sink.Run{
			ID:        runID,
			CreatedAt: start,
			Seed:      seed,
			Subjects:  cfg.Simulation.Subjects,
			Days:      cfg.Simulation.Days,
			Checksum:  wr.Checksum,
		}, res.Table); err != nil {
			return nil, err
		}
		report.Sink = &SinkReport{Driver: cfg.Sink.Driver, Rows: res.Table.Len()}
		m.ObserveSink(cfg.Sink.Driver, res.Table.Len())
		logger.Info("dataset loaded into sink", "driver", cfg.Sink.Driver, "dsn", cfg.Sink.RedactedDSN())
	}

	// Close the event log here so a complete copy can be published.
	events.Log(map[string]any{
		"event":    "run_finished",
		"run_id":   runID,
		"rows":     wr.Rows,
		"checksum": wr.Checksum,
		"elapsed":  now().Sub(start).String(),
	})
	events.Close()
	if report.Events != "" {
		files = append(files, report.Events)
	}

	if cfg.Publish.Enabled() {
		st, err := blob.Open(ctx, cfg.Publish)
		if err != nil {
			return nil, fmt.Errorf("opening blob store: %w", err)
		}
		infos, err := blob.Publish(ctx, st, cfg.Publish.Prefix, runID,
			map[string]string{"seed": strconv.FormatUint(seed, 10), "checksum": wr.Checksum}, files...)
		if err != nil {
			return nil, err
		}
		report.Published = infos
		m.ObservePublish(string(st.Driver()), len(infos))
		for _, info := range infos {
			logger.Info("published", "driver", st.Driver(), "key", info.Key, "bytes", info.Size)
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return nil, err
		}
	}

	report.Elapsed = now().Sub(start)
	return report, nil
}

func resolveFormat(out config.OutputConfig) (trajectory.Format, error) {
	if out.Format == "" {
		return trajectory.FormatFromPath(out.Path), nil
	}
	return trajectory.ParseFormat(out.Format)
}

// resolveSeed returns the configured seed, or a random one and false.
func resolveSeed(seed *uint64) (uint64, bool) {
	if seed != nil {
		return *seed, true
	}
	return rand.Uint64(), false
}

func generator(version string) string {
	if version == "" {
		return "lifesim"
	}
	return "lifesim " + version
}

func mkdirOutput(out string) error {
	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", pathutil.RedactPath(dir), err)
	}
	return nil
}

func loadSink(ctx context.Context, cfg config.SinkConfig, run sink.Run, tbl *trajectory.Table) error {
	s, err := sink.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("opening %s sink: %w", cfg.Driver, err)
	}
	defer s.Close()

	if err := s.Load(ctx, run, tbl.Records); err != nil {
		return fmt.Errorf("loading %s sink: %w", cfg.Driver, err)
	}
	return nil
}
