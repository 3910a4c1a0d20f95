package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_Demo(t *testing.T) {
	out := t.TempDir()
	cfg := defaultConfig()
	cfg.Demo = true
	cfg.Out = out
	cfg.Visualize = 2

	require.NoError(t, run(context.Background(), cfg, false))
	for _, name := range []string{"class_balance.png", "sample_0.png", "sample_1.png"} {
		_, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err, name)
	}
}

func TestRun_DemoBatchedClasses(t *testing.T) {
	out := t.TempDir()
	cfg := defaultConfig()
	cfg.Demo = true
	cfg.Out = out
	cfg.Type = "class"
	cfg.BatchSize = 5
	cfg.Workers = 2
	cfg.Balance = true

	require.NoError(t, run(context.Background(), cfg, false))
	_, err := os.Stat(filepath.Join(out, "class_balance.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "sample_0.png"))
	require.True(t, os.IsNotExist(err))
}

func TestRun_Errors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Type = "cuboid"
	require.Error(t, run(context.Background(), cfg, false))

	cfg = defaultConfig()
	cfg.Out = t.TempDir()
	require.Error(t, run(context.Background(), cfg, false))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelbowl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platform:
  base_url: http://localhost:8080/api/v1
  requests_per_second: 5
dataset: ds-1
type: class
batch_size: 8
seed: 7
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/api/v1", cfg.Platform.BaseURL)
	require.Equal(t, float64(5), cfg.Platform.RequestsPerSecond)
	require.Equal(t, "ds-1", cfg.Dataset)
	require.Equal(t, "class", cfg.Type)
	require.Equal(t, 8, cfg.BatchSize)
	require.Equal(t, int64(7), *cfg.Seed)
	require.Equal(t, "output", cfg.Out)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
