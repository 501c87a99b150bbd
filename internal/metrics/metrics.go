// Package metrics records archiving run metrics in a Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File results.
const (
	ResultPublished = "published"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

// Collector holds the metrics of one process. A nil *Collector discards
// every observation.
type Collector struct {
	registry *prometheus.Registry

	files          *prometheus.CounterVec
	frames         prometheus.Counter
	contentBytes   *prometheus.CounterVec
	publishedBytes prometheus.Counter
	fileDuration   prometheus.Histogram
}

// New creates a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annul_files_total",
				Help: "Source files processed, by result",
			},
			[]string{"result"},
		),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Name: "annul_frames_total",
			Help: "Frames written to containers",
		}),
		contentBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annul_content_bytes_total",
				Help: "Entry content bytes before and after sanitizing",
			},
			[]string{"kind"},
		),
		publishedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "annul_published_bytes_total",
			Help: "Compressed bytes of published containers",
		}),
		fileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "annul_file_duration_seconds",
			Help:    "Time to fetch, unpack, encode and publish one source file",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveFile records the outcome and duration of one source file.
func (c *Collector) ObserveFile(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.files.WithLabelValues(result).Inc()
	c.fileDuration.Observe(d.Seconds())
}

// AddFrame records one written frame and its content sizes.
func (c *Collector) AddFrame(originalBytes, sanitizedBytes uint64) {
	if c == nil {
		return
	}
	c.frames.Inc()
	c.contentBytes.WithLabelValues("original").Add(float64(originalBytes))
	c.contentBytes.WithLabelValues("sanitized").Add(float64(sanitizedBytes))
}

// AddPublished records the size of a published container.
func (c *Collector) AddPublished(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.publishedBytes.Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format to path,
// for collection by the node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
