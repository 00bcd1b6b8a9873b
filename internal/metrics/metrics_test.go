package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectDone(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := "A_stressed_low_activity"
			if id%2 == 0 {
				name = "B_balanced"
			}
			m.SubjectDone(id, name, 30, time.Millisecond)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5.0, testutil.ToFloat64(m.subjects.WithLabelValues("B_balanced")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.subjects.WithLabelValues("A_stressed_low_activity")))
	assert.Equal(t, 300.0, testutil.ToFloat64(m.rows))
	assert.Equal(t, 1, testutil.CollectAndCount(m.subjectDuration))
}

func TestObserveRunWriteSinkPublish(t *testing.T) {
	m := New()
	finished := time.Unix(1700000000, 0)

	m.ObserveRun(1500*time.Millisecond, finished)
	m.ObserveWrite("csv", 1024)
	m.ObserveWrite("csv", 1024)
	m.ObserveSink("sqlite", 600)
	m.ObservePublish("s3", 2)

	assert.Equal(t, 1.5, testutil.ToFloat64(m.runDuration))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastRun))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.bytesWritten.WithLabelValues("csv")))
	assert.Equal(t, 600.0, testutil.ToFloat64(m.sinkRows.WithLabelValues("sqlite")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.published.WithLabelValues("s3")))
}

func TestGatherLints(t *testing.T) {
	m := New()
	m.SubjectDone(0, "C_high_activity_healthy", 10, time.Millisecond)

	problems, err := testutil.GatherAndLint(m.Registry())
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.SubjectDone(0, "B_balanced", 120, 2*time.Millisecond)
	m.ObserveWrite("parquet", 4096)

	path := filepath.Join(t.TempDir(), "lifesim.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `lifesim_subjects_simulated_total{archetype="B_balanced"} 1`)
	assert.Contains(t, text, "lifesim_rows_generated_total 120")
	assert.Contains(t, text, `lifesim_output_bytes_written_total{format="parquet"} 4096`)
	assert.True(t, strings.HasPrefix(text, "# HELP"))
}

func TestWriteTextfile_MissingDir(t *testing.T) {
	m := New()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
