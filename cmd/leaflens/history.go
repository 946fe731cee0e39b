// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/leaflens/leaflens/pkg/history"
	"github.com/leaflens/leaflens/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// defaultDBPath returns the history database under the configured output directory.
func defaultDBPath(cmd *cobra.Command, dbPath string) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.OutputDir, "history.db"), nil
}

func plotCmd() *cobra.Command {
	var dbPath, runID, outPath string
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "plot the training history (loss, F1, precision, recall) of a run to a PNG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := defaultDBPath(cmd, dbPath)
			if err != nil {
				return err
			}
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			records, err := store.History(contextOf(cmd), runID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return errors.Errorf("no metrics recorded for run %q in %q", runID, dbPath)
			}
			if outPath == "" {
				outPath = fmt.Sprintf("training_history_%s.png", runID)
			}
			if err := history.PlotTraining(records, outPath); err != nil {
				return err
			}
			klog.Infof("training history of run %s (%d records) plotted to %q", runID, len(records), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "History database. Defaults to history.db in the configured output_dir.")
	cmd.Flags().StringVar(&runID, "run", "", "Id of the run to plot.")
	cmd.Flags().StringVar(&outPath, "out", "", "PNG file to write. Defaults to training_history_<run>.png.")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func runsCmd() *cobra.Command {
	var dbPath, runID string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "list the runs in the history database, or the metrics of one run with --run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := defaultDBPath(cmd, dbPath)
			if err != nil {
				return err
			}
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			ctx := contextOf(cmd)
			if runID != "" {
				return printRunHistory(ctx, store, runID)
			}
			runs, err := store.Runs(ctx)
			if err != nil {
				return err
			}
			table := commandline.NewTable([]string{"Run", "Name", "Data", "Created"})
			for _, run := range runs {
				table.AddRow(false, run.ID, run.Name, run.DataDir, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Println(commandline.TitleStyle.Render(fmt.Sprintf("Runs in %q", dbPath)))
			fmt.Println(table.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "History database. Defaults to history.db in the configured output_dir.")
	cmd.Flags().StringVar(&runID, "run", "", "If set, list the metrics recorded for this run.")
	return cmd
}

func printRunHistory(ctx context.Context, store *history.Store, runID string) error {
	records, err := store.History(ctx, runID)
	if err != nil {
		return err
	}
	table := commandline.NewTable([]string{"Split", "Epoch", "Loss", "F1", "Precision", "Recall", "AUC"},
		lipgloss.Left, lipgloss.Right)
	for _, rec := range records {
		loss := "-"
		if !math.IsNaN(rec.Loss) {
			loss = commandline.FormatMetric(rec.Loss)
		}
		table.AddRow(false, rec.Split.String(), fmt.Sprint(rec.Epoch), loss,
			commandline.FormatMetric(rec.Report.F1), commandline.FormatMetric(rec.Report.Precision),
			commandline.FormatMetric(rec.Report.Recall), commandline.FormatMetric(rec.Report.AUC))
	}
	fmt.Println(commandline.TitleStyle.Render(fmt.Sprintf("Run %s", runID)))
	fmt.Println(table.Render())
	return nil
}

// contextOf returns the command context, or a background one when executed without one.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
