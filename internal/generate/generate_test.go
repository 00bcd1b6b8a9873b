package generate

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/lifesim/internal/blob"
	"github.com/nvandessel/lifesim/internal/config"
	"github.com/nvandessel/lifesim/internal/manifest"
	"github.com/nvandessel/lifesim/internal/pathutil"
	"github.com/nvandessel/lifesim/internal/sink"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

func smallConfig(t *testing.T, name string) *config.LifesimConfig {
	t.Helper()
	seed := uint64(20240601)
	cfg := config.Default()
	cfg.Simulation.Subjects = 4
	cfg.Simulation.Days = 14
	cfg.Simulation.Seed = &seed
	cfg.Output.Path = filepath.Join(t.TempDir(), name)
	return cfg
}

func TestRun_WritesDatasetAndManifest(t *testing.T) {
	cfg := smallConfig(t, "lifestyle.csv")

	rep, err := Run(context.Background(), Options{Config: cfg, Version: "v0.1.0"})
	require.NoError(t, err)

	assert.Equal(t, uint64(20240601), rep.Seed)
	assert.Equal(t, 56, rep.Output.Rows)
	assert.Equal(t, trajectory.FormatCSV, rep.Output.Format)
	assert.Empty(t, rep.Events, "no event log at info level")

	recs, err := trajectory.ReadFile(context.Background(), cfg.Output.Path, "")
	require.NoError(t, err)
	check := trajectory.Check(recs, 4, 14)
	assert.True(t, check.OK(), "violations: %+v", check.Violations)

	m, err := manifest.Read(manifest.Path(cfg.Output.Path))
	require.NoError(t, err)
	assert.Equal(t, "lifesim v0.1.0", m.Generator)
	assert.Equal(t, rep.RunID, m.Metadata["run_id"])
	assert.NoError(t, manifest.Verify(m, cfg.Output.Path))

	total := 0
	for _, n := range m.Archetypes {
		total += n
	}
	assert.Equal(t, 4, total)
}

func TestRun_Deterministic(t *testing.T) {
	a := smallConfig(t, "a.csv")
	a.Simulation.Workers = 1
	b := smallConfig(t, "b.csv")
	b.Simulation.Workers = 8

	ra, err := Run(context.Background(), Options{Config: a})
	require.NoError(t, err)
	rb, err := Run(context.Background(), Options{Config: b})
	require.NoError(t, err)

	assert.Equal(t, ra.Output.Checksum, rb.Output.Checksum)
}

func TestRun_MissingDirectoryIsFatal(t *testing.T) {
	cfg := smallConfig(t, "x.csv")
	cfg.Output.Path = filepath.Join(t.TempDir(), "no", "such", "dir", "x.csv")

	_, err := Run(context.Background(), Options{Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pathutil.ErrOutputDir), "err = %v", err)

	_, statErr := os.Stat(filepath.Dir(cfg.Output.Path))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_CreateDirs(t *testing.T) {
	cfg := smallConfig(t, "x.csv")
	cfg.Output.Path = filepath.Join(t.TempDir(), "data", "raw", "lifestyle", "simulated", "out.csv")
	cfg.Output.CreateDirs = true

	_, err := Run(context.Background(), Options{Config: cfg})
	require.NoError(t, err)
	_, err = os.Stat(cfg.Output.Path)
	assert.NoError(t, err)
}

func TestRun_ParquetFromExtension(t *testing.T) {
	cfg := smallConfig(t, "out.parquet")
	cfg.Output.Manifest = false

	rep, err := Run(context.Background(), Options{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, trajectory.FormatParquet, rep.Output.Format)
	assert.Empty(t, rep.Manifest)

	recs, err := trajectory.ReadFile(context.Background(), cfg.Output.Path, "")
	require.NoError(t, err)
	assert.Len(t, recs, 56)

	_, err = os.Stat(manifest.Path(cfg.Output.Path))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ParquetFromEnvOutput(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out := filepath.Join(t.TempDir(), "run.parquet")
	t.Setenv("LIFESIM_OUTPUT", out)
	t.Setenv("LIFESIM_FORMAT", "")
	t.Setenv("LIFESIM_SEED", "7")
	t.Setenv("LIFESIM_SUBJECTS", "2")
	t.Setenv("LIFESIM_DAYS", "3")

	cfg, err := config.Load()
	require.NoError(t, err)

	rep, err := Run(context.Background(), Options{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, trajectory.FormatParquet, rep.Output.Format)

	recs, err := trajectory.ReadFile(context.Background(), out, "")
	require.NoError(t, err)
	assert.Len(t, recs, 6)

	mf, err := manifest.Read(rep.Manifest)
	require.NoError(t, err)
	assert.Equal(t, "parquet", mf.Format)
	require.NoError(t, manifest.Verify(mf, out))
}

func TestRun_SameSecondRunsShareSink(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "lifesim.db")
	base := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	var ids []string
	for i, offset := range []time.Duration{100 * time.Millisecond, 700 * time.Millisecond} {
		cfg := smallConfig(t, "out"+strconv.Itoa(i)+".csv")
		cfg.Sink = config.SinkConfig{Driver: "sqlite", DSN: dsn}
		at := base.Add(offset)

		rep, err := Run(context.Background(), Options{Config: cfg, Now: func() time.Time { return at }})
		require.NoError(t, err, "run %d", i)
		ids = append(ids, rep.RunID)
	}
	assert.NotEqual(t, ids[0], ids[1])

	s, err := sink.Open(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRun_RandomSeedWhenUnset(t *testing.T) {
	cfg := smallConfig(t, "out.csv")
	cfg.Simulation.Seed = nil

	rep, err := Run(context.Background(), Options{Config: cfg})
	require.NoError(t, err)

	m, err := manifest.Read(manifest.Path(cfg.Output.Path))
	require.NoError(t, err)
	assert.Equal(t, rep.Seed, m.Seed)
	assert.True(t, strings.HasSuffix(rep.RunID, "-"+strconv.FormatUint(rep.Seed, 10)))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := smallConfig(t, "out.csv")
	cfg.Simulation.Days = 0
	_, err := Run(context.Background(), Options{Config: cfg})
	assert.Error(t, err)

	cfg = smallConfig(t, "out.csv")
	cfg.Output.Format = "xlsx"
	_, err = Run(context.Background(), Options{Config: cfg})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := smallConfig(t, "out.csv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, statErr := os.Stat(cfg.Output.Path)
	assert.True(t, os.IsNotExist(statErr), "no partial output after cancellation")
}

func TestRun_AllOptionalSteps(t *testing.T) {
	cfg := smallConfig(t, "out.csv")
	dir := filepath.Dir(cfg.Output.Path)
	cfg.Logging.Level = "trace"
	cfg.Sink = config.SinkConfig{Driver: "sqlite", DSN: filepath.Join(dir, "lifesim.db")}
	cfg.Publish = config.PublishConfig{Driver: "fs", Prefix: "datasets", FS: config.FSConfig{Root: filepath.Join(dir, "blobs")}}
	cfg.Metrics.Textfile = filepath.Join(dir, "lifesim.prom")

	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	rep, err := Run(context.Background(), Options{Config: cfg, Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	assert.Equal(t, "20260203T040506.000000Z-20240601", rep.RunID)

	// sink
	require.NotNil(t, rep.Sink)
	assert.Equal(t, 56, rep.Sink.Rows)
	s, err := sink.Open(context.Background(), "sqlite", cfg.Sink.DSN)
	require.NoError(t, err)
	defer s.Close()
	stored, err := s.Records(context.Background(), rep.RunID)
	require.NoError(t, err)
	fromFile, err := trajectory.ReadFile(context.Background(), cfg.Output.Path, "")
	require.NoError(t, err)
	assert.Equal(t, fromFile, stored)

	// publish
	require.Len(t, rep.Published, 3)
	assert.Equal(t, "datasets/"+rep.RunID+"/out.csv", rep.Published[0].Key)
	assert.Equal(t, "datasets/"+rep.RunID+"/out.csv.manifest.json", rep.Published[1].Key)
	assert.Equal(t, "datasets/"+rep.RunID+"/out.csv.events.jsonl", rep.Published[2].Key)
	st, err := blob.NewFilesystem(cfg.Publish.FS.Root)
	require.NoError(t, err)
	info, err := st.Head(context.Background(), rep.Published[0].Key)
	require.NoError(t, err)
	assert.Equal(t, rep.Output.Bytes, info.Size)
	assert.Equal(t, "20240601", info.Metadata["seed"])

	// metrics
	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "lifesim_rows_generated_total 56")
	assert.Contains(t, string(prom), `lifesim_sink_rows_loaded_total{driver="sqlite"} 56`)
	assert.Contains(t, string(prom), `lifesim_published_objects_total{driver="fs"} 3`)

	// events: run_started, one subject_done per subject at trace, run_finished
	require.NotEmpty(t, rep.Events)
	f, err := os.Open(rep.Events)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], `"event":"run_started"`)
	assert.Contains(t, lines[5], `"event":"run_finished"`)

	// The published event log is the finished one.
	_, rc, err := st.Get(context.Background(), rep.Published[2].Key)
	require.NoError(t, err)
	defer rc.Close()
	published, err := io.ReadAll(rc)
	require.NoError(t, err)
	local, err := os.ReadFile(rep.Events)
	require.NoError(t, err)
	assert.Equal(t, string(local), string(published))
	assert.Contains(t, string(published), `"event":"run_finished"`)
}
