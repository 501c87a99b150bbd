package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	c := New()
	c.ObserveFile(ResultPublished, 2*time.Second)
	c.ObserveFile(ResultPublished, time.Second)
	c.ObserveFile(ResultFailed, time.Millisecond)
	c.AddFrame(100, 40)
	c.AddFrame(10, 10)
	c.AddPublished(512)

	assert.InDelta(t, 2, testutil.ToFloat64(c.files.WithLabelValues(ResultPublished)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.files.WithLabelValues(ResultFailed)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.frames), 0)
	assert.InDelta(t, 110, testutil.ToFloat64(c.contentBytes.WithLabelValues("original")), 0)
	assert.InDelta(t, 50, testutil.ToFloat64(c.contentBytes.WithLabelValues("sanitized")), 0)
	assert.InDelta(t, 512, testutil.ToFloat64(c.publishedBytes), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(c.fileDuration))
}

func TestCollector_Nil(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.ObserveFile(ResultSkipped, time.Second)
	c.AddFrame(1, 1)
	c.AddPublished(1)
	assert.Nil(t, c.Registry())
	require.NoError(t, c.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	c := New()
	c.ObserveFile(ResultSkipped, time.Second)

	path := filepath.Join(t.TempDir(), "annul.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `annul_files_total{result="skipped"} 1`)
	assert.Contains(t, string(data), "annul_file_duration_seconds_count 1")
}
