// Package metrics records install outcomes for ffdep.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the counters the installer reports into.
type Metrics interface {
	IncInstallAttempt(outcome string)
	ObserveInstallDuration(path string, durationSeconds float64)
	AddDownloadedBytes(n int64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncInstallAttempt(string)               {}
func (Noop) ObserveInstallDuration(string, float64) {}
func (Noop) AddDownloadedBytes(int64)               {}

// Prom implements Metrics backed by Prometheus collectors on a private registry.
type Prom struct {
	registry        *prometheus.Registry
	installAttempts *prometheus.CounterVec
	installDuration *prometheus.HistogramVec
	downloadedBytes prometheus.Counter
}

// NewProm creates collectors under the given namespace and registers them.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		installAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "install_attempts_total",
			Help:      "Install attempts by outcome",
		}, []string{"outcome"}),
		installDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Install duration by acquisition path",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"path"}),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written to disk by the downloader",
		}),
	}
	p.registry.MustRegister(p.installAttempts, p.installDuration, p.downloadedBytes)
	return p
}

func (p *Prom) IncInstallAttempt(outcome string) {
	p.installAttempts.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveInstallDuration(path string, durationSeconds float64) {
	p.installDuration.WithLabelValues(path).Observe(durationSeconds)
}

func (p *Prom) AddDownloadedBytes(n int64) {
	if n > 0 {
		p.downloadedBytes.Add(float64(n))
	}
}

// WriteTextfile dumps the current values in the node_exporter textfile format.
func (p *Prom) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
