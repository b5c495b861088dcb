package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopMetrics(t *testing.T) {
	var m Metrics = Noop{}
	m.IncInstallAttempt("success")
	m.ObserveInstallDuration("direct", 1.5)
	m.AddDownloadedBytes(10)
}

func TestPromMetrics(t *testing.T) {
	m := NewProm("ffdep")
	m.IncInstallAttempt("success")
	m.IncInstallAttempt("success")
	m.IncInstallAttempt("busy")
	m.AddDownloadedBytes(2048)
	m.AddDownloadedBytes(-5)
	m.ObserveInstallDuration("direct", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.installAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.installAttempts.WithLabelValues("busy")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.downloadedBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.installDuration))

	families, err := m.registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ffdep_install_attempts_total"])
	assert.True(t, names["ffdep_download_bytes_total"])
	assert.True(t, names["ffdep_install_duration_seconds"])
}

func TestPromWriteTextfile(t *testing.T) {
	m := NewProm("ffdep")
	m.IncInstallAttempt("failed")

	path := filepath.Join(t.TempDir(), "ffdep.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ffdep_install_attempts_total{outcome="failed"} 1`)
}
