// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func validateCmd() *cobra.Command {
	var outPath string
	var strict, noProgress bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "decode every image of the dataset and report the invalid ones",
		Long: "Decodes every image of the dataset, of all splits, in parallel. Invalid images are reported, " +
			"and optionally listed in a metadata CSV file, but never moved or deleted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			ds, err := openDataset(cfg, metadata.Train)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			invalid, err := ds.Validate(ctx, cfg.NumWorkers, !noProgress)
			if err != nil {
				klog.Warningf("validation interrupted: only partial results are reported")
			}

			if len(invalid) == 0 {
				if err == nil {
					fmt.Printf("All %s images are valid.\n", humanize.Comma(int64(len(ds.Records()))))
				}
				return err
			}
			table := commandline.NewTable([]string{"Image", "Class", "Split", "Error"})
			records := make([]metadata.Record, 0, len(invalid))
			for _, inv := range invalid {
				table.AddRow(true, inv.Record.ImagePath, inv.Record.ClassName, inv.Record.Split.String(), inv.Err.Error())
				records = append(records, inv.Record)
			}
			fmt.Println(commandline.TitleStyle.Render(fmt.Sprintf("Invalid images (%d of %s)",
				len(invalid), humanize.Comma(int64(len(ds.Records()))))))
			fmt.Println(table.Render())
			if outPath != "" {
				if writeErr := metadata.WriteCSVFile(outPath, records); writeErr != nil {
					return writeErr
				}
				klog.Infof("invalid images listed in %q", outPath)
			}
			if err != nil {
				return err
			}
			if strict {
				return errors.Errorf("%d invalid images found", len(invalid))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "If set, the invalid images are written to this CSV file, in metadata.csv format.")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error if any image is invalid.")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Don't display a progress bar.")
	return cmd
}
