package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:50051", cfg.CoordinatorAddr)
	require.Equal(t, 60000, cfg.PortMin)
	require.Equal(t, 61000, cfg.PortMax)
	require.Equal(t, 1000, cfg.QueueCapacity)
	require.Equal(t, DefaultBridgeAddr, cfg.BridgeAddr)
	require.Equal(t, DefaultSnapshotInterval, cfg.SnapshotInterval)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	in := &Config{
		CoordinatorAddr:   "10.0.0.5:50051",
		PortMin:           62000,
		PortMax:           62100,
		QueueCapacity:     64,
		Metrics:           true,
		GraphSnapshotPath: "/tmp/graph.json",
		SnapshotInterval:  30 * time.Second,
	}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:50051", out.CoordinatorAddr)
	require.Equal(t, 62000, out.PortMin)
	require.Equal(t, 64, out.QueueCapacity)
	require.True(t, out.Metrics)
	require.Equal(t, 30*time.Second, out.SnapshotInterval)
}

func TestSaveRejectsInvalidRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := Save(path, &Config{PortMin: 61000, PortMax: 60000})
	require.Error(t, err)
}
