// Package metrics exports run results in the Prometheus textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "metrics")

const MetricsNamespace = "layoutchk"

// Recorder holds the metrics of one run in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	baselineOutcomes *prometheus.CounterVec
	platformRuns     *prometheus.CounterVec
	candidateTests   *prometheus.GaugeVec
	rebaselined      *prometheus.GaugeVec
	deniedTests      *prometheus.GaugeVec
	lastRun          prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		baselineOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "baseline_outcomes_total",
			Help:      "Count of baseline outcomes by platform, suffix and outcome",
		}, []string{"platform", "suffix", "outcome"}),
		platformRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "platform_runs_total",
			Help:      "Count of platform passes by final state",
		}, []string{"platform", "state"}),
		candidateTests: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "candidate_tests",
			Help:      "Tests marked for rebaseline at the start of the platform pass",
		}, []string{"platform"}),
		rebaselined: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "rebaselined_tests",
			Help:      "Tests fully rebaselined in the platform pass",
		}, []string{"platform"}),
		deniedTests: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "denied_tests",
			Help:      "Candidate tests excluded by policy",
		}, []string{"platform"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last run",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordRun adds every platform pass of run.
func (r *Recorder) RecordRun(run *models.RunReport) {
	for _, p := range run.Platforms {
		platform := string(p.Platform)
		r.platformRuns.WithLabelValues(platform, string(p.State)).Inc()
		r.candidateTests.WithLabelValues(platform).Set(float64(len(p.Candidates)))
		r.rebaselined.WithLabelValues(platform).Set(float64(len(p.Rebaselined)))
		r.deniedTests.WithLabelValues(platform).Set(float64(len(p.Denied)))
		for _, t := range p.Tests {
			for _, s := range t.Suffixes {
				r.baselineOutcomes.WithLabelValues(platform, string(s.Suffix), string(s.Outcome)).Inc()
			}
		}
	}
	if !run.Timestamp.IsZero() {
		r.lastRun.Set(float64(run.Timestamp.Unix()))
	}
}

// WriteTextfile writes the registry for the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	logger.WithField("path", path).Info("Wrote metrics textfile")
	return nil
}
