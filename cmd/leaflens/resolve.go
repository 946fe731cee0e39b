// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/leaflens/leaflens/pkg/config"
	"github.com/leaflens/leaflens/pkg/dataset"
	"github.com/leaflens/leaflens/pkg/dataset/classes"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/pkg/support/fsutil"
	"github.com/leaflens/leaflens/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func resolveCmd() *cobra.Command {
	var writeMetadata, writeClassInfo, force bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "resolve the dataset metadata and classes, and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			ds, err := openDataset(cfg, metadata.Train)
			if err != nil {
				return err
			}
			printDatasetSummary(ds)
			if writeMetadata {
				if err := writeFileUnlessExists(filepath.Join(ds.Root(), metadata.MetadataFileName), force, func(path string) error {
					return metadata.WriteCSVFile(path, ds.Records())
				}); err != nil {
					return err
				}
			}
			if writeClassInfo {
				if err := writeFileUnlessExists(filepath.Join(ds.Root(), classes.InfoFileName), force, func(string) error {
					return ds.SaveClassInfo()
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&writeMetadata, "write-metadata", false,
		"Write the resolved records to metadata.csv in the dataset root, freezing the split assignment.")
	cmd.Flags().BoolVar(&writeClassInfo, "write-class-info", false,
		"Write the class registry to class_info.json in the dataset root.")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing metadata.csv or class_info.json files.")
	return cmd
}

// openDataset opens the configured dataset serving split.
func openDataset(cfg *config.Config, split metadata.Split) (*dataset.Dataset, error) {
	ds, err := dataset.New(cfg.DataDir, split, dataset.VariantByName(cfg.DatasetType))
	if err != nil {
		return nil, err
	}
	return ds.WithImageSize(cfg.ImageSize).WithSeed(cfg.Seed), nil
}

// writeFileUnlessExists calls write with path, unless the file exists and force is false.
func writeFileUnlessExists(path string, force bool, write func(path string) error) error {
	exists, err := fsutil.FileExists(path)
	if err != nil {
		return err
	}
	if exists && !force {
		return errors.Errorf("%q already exists, use --force to overwrite it", path)
	}
	if err := write(path); err != nil {
		return err
	}
	klog.Infof("wrote %q", path)
	return nil
}

func printDatasetSummary(ds *dataset.Dataset) {
	records := ds.Records()
	registry := ds.Registry()
	fmt.Println(commandline.TitleStyle.Render(fmt.Sprintf("Dataset %q (%s)", ds.Root(), ds.Variant().Name())))

	splitCounts := metadata.CountBySplit(records)
	splitNames := make([]string, 0, len(metadata.AllSplits))
	counts := make(map[string]int, len(metadata.AllSplits))
	for _, split := range metadata.AllSplits {
		splitNames = append(splitNames, split.String())
		counts[split.String()] = splitCounts[split]
	}
	commandline.ReportCounts(os.Stdout, "Samples per split", [2]string{"Split", "Samples"}, splitNames, counts)

	perClass := make(map[string]map[metadata.Split]int, registry.NumClasses)
	for _, r := range records {
		if perClass[r.ClassName] == nil {
			perClass[r.ClassName] = make(map[metadata.Split]int, len(metadata.AllSplits))
		}
		perClass[r.ClassName][r.Split]++
	}
	headers := []string{"#", "Class", "Category"}
	for _, split := range metadata.AllSplits {
		headers = append(headers, split.String())
	}
	table := commandline.NewTable(headers, lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for idx, name := range registry.Classes {
		row := []string{fmt.Sprint(idx), name, classes.Categorize(name).String()}
		var missing bool
		for _, split := range metadata.AllSplits {
			n := perClass[name][split]
			missing = missing || n == 0
			row = append(row, humanize.Comma(int64(n)))
		}
		table.AddRow(missing, row...)
	}
	fmt.Println(commandline.TitleStyle.Render(fmt.Sprintf("Classes (%d)", registry.NumClasses)))
	fmt.Println(table.Render())

	if len(registry.Categories) > 0 {
		categoryNames := make([]string, 0, len(classes.AllCategories))
		categoryCounts := make(map[string]int, len(classes.AllCategories))
		for _, category := range classes.AllCategories {
			categoryNames = append(categoryNames, category.String())
			categoryCounts[category.String()] = len(registry.Categories[category])
		}
		commandline.ReportCounts(os.Stdout, "Classes per category", [2]string{"Category", "Classes"}, categoryNames, categoryCounts)
	}
}
