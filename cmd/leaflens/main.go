// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// leaflens inspects plant health datasets, streams them through the data pipeline, evaluates model
// predictions and plots training histories.
//
// Usage:
//
//	leaflens resolve --data-dir data/plantvillage
//	leaflens validate --data-dir data/plantvillage
//	leaflens scan --data-dir data/plantvillage --split train --epochs 2
//	leaflens evaluate --truth truth.csv --pred pred.csv --db runs/history.db --run-name baseline
//	leaflens plot --db runs/history.db --run <run-id>
//
// Settings are read from the --config YAML file, LEAFLENS_* environment variables, the --set flag and the
// flags of each command, in that order of precedence (the last one wins).
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/leaflens/leaflens/pkg/config"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	flagConfig      string
	flagSettings    string
	flagDataDir     string
	flagDatasetType string
	flagSeed        uint64
	flagWorkers     int
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leaflens",
		Short:         "leaflens plant health dataset and metrics tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "YAML configuration file. If empty, defaults are used.")
	flags.StringVar(&flagSettings, "set", "", config.SettingsUsage())
	flags.StringVar(&flagDataDir, "data-dir", "", "Dataset root directory, overrides data_dir.")
	flags.StringVar(&flagDatasetType, "dataset-type", "", `Dataset type: "plantvillage", "ip102" or "generic", overrides dataset_type.`)
	flags.Uint64Var(&flagSeed, "seed", 0, "Random seed, overrides seed.")
	flags.IntVar(&flagWorkers, "workers", 0, "Number of parallel workers, overrides num_workers.")

	flags.AddGoFlagSet(goflag.CommandLine)

	root.AddCommand(resolveCmd(), validateCmd(), scanCmd(), evaluateCmd(), plotCmd(), runsCmd())
	return root
}

// loadConfig builds the configuration from the file, environment, --set and flags.
// If requireDataDir is false, the configuration is not validated.
func loadConfig(cmd *cobra.Command, requireDataDir bool) (*config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		var err error
		if cfg, err = config.Load(flagConfig); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return nil, err
	}
	keysSet, err := cfg.ParseSettings(flagSettings)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = flagDataDir
	}
	if flags.Changed("dataset-type") {
		cfg.DatasetType = flagDatasetType
	}
	if flags.Changed("seed") {
		cfg.Seed = flagSeed
	}
	if flags.Changed("workers") {
		cfg.NumWorkers = flagWorkers
	}
	if requireDataDir {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if len(keysSet) > 0 {
		klog.V(1).Infof("settings from --set: %v", keysSet)
	}
	if klog.V(2).Enabled() {
		for _, kv := range cfg.Settings() {
			klog.Infof("  %s: %s", kv[0], kv[1])
		}
	}
	return cfg, nil
}

func main() {
	klog.InitFlags(nil)
	var err error
	panicErr := exceptions.TryCatch[error](func() {
		err = rootCmd().Execute()
	})
	if err == nil {
		err = panicErr
	}
	klog.Flush()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "leaflens: %+v\n", err)
		os.Exit(1)
	}
}
