// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package config holds the YAML configuration shared by the dataset tools and the training driver.
//
// Only a few keys are used by this module (data_dir, dataset_type, image_size, batch_size, num_workers,
// seed, threshold, output_dir). The remaining ones belong to the training driver and are kept so that a
// configuration file can be loaded, amended from the command line and saved back without losing them.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/leaflens/leaflens/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// ErrMissingKey is returned by Validate when a required key is not set.
var ErrMissingKey = errors.New("missing required configuration key")

// EnvPrefix is the prefix of the environment variables read by ApplyEnvironment.
const EnvPrefix = "LEAFLENS_"

// Config is the dataset and training configuration.
type Config struct {
	DataDir     string  `yaml:"data_dir"`
	DatasetType string  `yaml:"dataset_type"`
	ImageSize   int     `yaml:"image_size"`
	BatchSize   int     `yaml:"batch_size"`
	NumWorkers  int     `yaml:"num_workers"`
	Seed        uint64  `yaml:"seed"`
	Threshold   float64 `yaml:"threshold"`
	OutputDir   string  `yaml:"output_dir"`

	// Training driver keys.
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`
	ModelName    string  `yaml:"model_name"`
	Pretrained   bool    `yaml:"pretrained"`
	SaveInterval int     `yaml:"save_interval"`
}

// Default returns the configuration used for keys not present in a file. DataDir has no default.
func Default() *Config {
	return &Config{
		DatasetType:  "plantvillage",
		ImageSize:    224,
		BatchSize:    32,
		NumWorkers:   runtime.NumCPU(),
		Seed:         42,
		Threshold:    0.5,
		OutputDir:    "runs",
		Epochs:       50,
		LearningRate: 1e-3,
		WeightDecay:  1e-4,
		ModelName:    "efficientnet_b0",
		Pretrained:   true,
		SaveInterval: 10,
	}
}

// Parse reads a YAML configuration on top of Default. It doesn't validate it: flags or environment
// variables may still fill in missing keys.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML configuration")
	}
	return cfg, nil
}

// Load reads and parses the configuration file in path.
func Load(path string) (*Config, error) {
	path, err := fsutil.ReplaceTildeInDir(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "configuration %q", path)
	}
	klog.V(1).Infof("loaded configuration from %q", path)
	return cfg, nil
}

// Save writes the configuration as YAML to path, creating the parent directory if needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal configuration")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory for %q", path)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write configuration %q", path)
	}
	klog.V(1).Infof("configuration saved to %q", path)
	return nil
}

// ApplyEnvironment overrides keys with the LEAFLENS_DATA_DIR, LEAFLENS_DATASET_TYPE, LEAFLENS_OUTPUT_DIR,
// LEAFLENS_BATCH_SIZE, LEAFLENS_NUM_WORKERS and LEAFLENS_SEED environment variables, when set.
func (c *Config) ApplyEnvironment() error {
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "DATASET_TYPE"); v != "" {
		c.DatasetType = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	for _, intVar := range []struct {
		name string
		ptr  *int
	}{
		{"BATCH_SIZE", &c.BatchSize},
		{"NUM_WORKERS", &c.NumWorkers},
	} {
		v := os.Getenv(EnvPrefix + intVar.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s%s=%q", EnvPrefix, intVar.name, v)
		}
		*intVar.ptr = n
	}
	if v := os.Getenv(EnvPrefix + "SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %sSEED=%q", EnvPrefix, v)
		}
		c.Seed = seed
	}
	return nil
}

// Validate checks required keys and value ranges, and expands a leading "~" in the directories.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.Wrap(ErrMissingKey, "data_dir")
	}
	var err error
	if c.DataDir, err = fsutil.ReplaceTildeInDir(c.DataDir); err != nil {
		return err
	}
	if c.OutputDir, err = fsutil.ReplaceTildeInDir(c.OutputDir); err != nil {
		return err
	}
	switch {
	case c.ImageSize <= 0:
		return errors.Errorf("image_size must be positive, got %d", c.ImageSize)
	case c.BatchSize <= 0:
		return errors.Errorf("batch_size must be positive, got %d", c.BatchSize)
	case c.NumWorkers < 0:
		return errors.Errorf("num_workers must be >= 0, got %d", c.NumWorkers)
	case c.Threshold <= 0 || c.Threshold >= 1:
		return errors.Errorf("threshold must be in (0, 1), got %g", c.Threshold)
	case c.Epochs < 0:
		return errors.Errorf("epochs must be >= 0, got %d", c.Epochs)
	case c.SaveInterval < 0:
		return errors.Errorf("save_interval must be >= 0, got %d", c.SaveInterval)
	}
	return nil
}
