// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "plantvillage", cfg.DatasetType)
	assert.Equal(t, 224, cfg.ImageSize)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, runtime.NumCPU(), cfg.NumWorkers)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 0.5, cfg.Threshold)
	assert.Equal(t, "runs", cfg.OutputDir)
	assert.Empty(t, cfg.DataDir)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
data_dir: data/ip102
dataset_type: ip102
batch_size: 8
learning_rate: 0.0003
pretrained: false
`))
	require.NoError(t, err)
	assert.Equal(t, "data/ip102", cfg.DataDir)
	assert.Equal(t, "ip102", cfg.DatasetType)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.InDelta(t, 3e-4, cfg.LearningRate, 1e-12)
	assert.False(t, cfg.Pretrained)
	// Keys not in the file keep their defaults.
	assert.Equal(t, 224, cfg.ImageSize)
	assert.Equal(t, 10, cfg.SaveInterval)
	require.NoError(t, cfg.Validate())

	_, err = Parse([]byte("batch_size: [1, 2"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingKey))
	assert.Contains(t, err.Error(), "data_dir")

	cfg.DataDir = "data"
	require.NoError(t, cfg.Validate())

	for _, mutate := range []func(c *Config){
		func(c *Config) { c.ImageSize = 0 },
		func(c *Config) { c.BatchSize = -1 },
		func(c *Config) { c.NumWorkers = -2 },
		func(c *Config) { c.Threshold = 1 },
		func(c *Config) { c.Epochs = -1 },
	} {
		c := Default()
		c.DataDir = "data"
		mutate(c)
		err := c.Validate()
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrMissingKey))
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "run.yaml")
	cfg := Default()
	cfg.DataDir = "/data/plantvillage"
	cfg.Epochs = 3
	cfg.ModelName = "resnet50"
	require.NoError(t, cfg.Save(path))

	loaded := must.M1(Load(path))
	assert.Equal(t, cfg, loaded)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", "/env/data")
	t.Setenv(EnvPrefix+"BATCH_SIZE", "4")
	t.Setenv(EnvPrefix+"SEED", "7")
	cfg := Default()
	require.NoError(t, cfg.ApplyEnvironment())
	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, 4, cfg.BatchSize)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "plantvillage", cfg.DatasetType)

	t.Setenv(EnvPrefix+"NUM_WORKERS", "many")
	require.Error(t, Default().ApplyEnvironment())
}

func TestParseSettings(t *testing.T) {
	cfg := Default()
	keys, err := cfg.ParseSettings("batch_size=1_024; dataset_type=ip102;threshold=0.3;pretrained=false;")
	require.NoError(t, err)
	assert.Equal(t, []string{"batch_size", "dataset_type", "threshold", "pretrained"}, keys)
	assert.Equal(t, 1024, cfg.BatchSize)
	assert.Equal(t, "ip102", cfg.DatasetType)
	assert.Equal(t, 0.3, cfg.Threshold)
	assert.False(t, cfg.Pretrained)
	assert.Equal(t, 224, cfg.ImageSize)

	_, err = cfg.ParseSettings("unknown_key=3")
	require.Error(t, err)
	_, err = cfg.ParseSettings("batch_size=many")
	require.Error(t, err)
	_, err = cfg.ParseSettings("batch_size")
	require.Error(t, err)
}

func TestParseSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(path, []byte("# Overrides\nseed=7;epochs=2\n\nmodel_name=resnet50\n"), 0644))
	cfg := Default()
	keys, err := cfg.ParseSettings("file:" + path + ";image_size=128")
	require.NoError(t, err)
	assert.Equal(t, []string{"seed", "epochs", "model_name", "image_size"}, keys)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 2, cfg.Epochs)
	assert.Equal(t, "resnet50", cfg.ModelName)
	assert.Equal(t, 128, cfg.ImageSize)
}

func TestSettings(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	settings := cfg.Settings()
	require.Len(t, settings, 14)
	assert.Equal(t, [2]string{"data_dir", "/data"}, settings[0])
	assert.Equal(t, [2]string{"batch_size", "32"}, settings[3])
	assert.Contains(t, SettingsUsage(), "image_size")
}
