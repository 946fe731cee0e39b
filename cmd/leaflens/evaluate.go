// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/pkg/history"
	"github.com/leaflens/leaflens/pkg/metrics"
	"github.com/leaflens/leaflens/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

type evaluateFlags struct {
	truthPath, predPath string
	threshold           float64
	perClassOut         string
	jsonOut             string
	confusion           bool

	dbPath, runID, runName string
	splitName              string
	epoch                  int
	loss                   float64
}

func evaluateCmd() *cobra.Command {
	var f evaluateFlags
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "compute multi-label metrics of predictions against the ground truth",
		Long: "Reads two CSV files with a header of class names and one row per sample: --truth with 0/1 labels " +
			"and --pred with probabilities. Prints the aggregate and per-class metrics, and optionally records " +
			"them as one epoch of a run in the history database.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				f.threshold = cfg.Threshold
			}
			return evaluate(contextOf(cmd), f, cfg.DataDir)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.truthPath, "truth", "", "CSV file with the ground truth labels.")
	flags.StringVar(&f.predPath, "pred", "", "CSV file with the predicted probabilities.")
	flags.Float64Var(&f.threshold, "threshold", metrics.DefaultThreshold,
		"Predictions strictly above the threshold are positive. Defaults to the configured threshold.")
	flags.StringVar(&f.perClassOut, "per-class-out", "", "If set, the per-class metrics are written to this CSV file.")
	flags.StringVar(&f.jsonOut, "json-out", "", "If set, the aggregate metrics are written to this JSON file.")
	flags.BoolVar(&f.confusion, "confusion", false, "Print the confusion matrix of each class.")
	flags.StringVar(&f.dbPath, "db", "", "History database to record the metrics in. If empty, nothing is recorded.")
	flags.StringVar(&f.runID, "run", "", "Id of the run to record the metrics in. If empty, a new run is created.")
	flags.StringVar(&f.runName, "run-name", "", "Name of the run created when --run is not given.")
	flags.StringVar(&f.splitName, "split", "val", "Split the metrics are recorded for.")
	flags.IntVar(&f.epoch, "epoch", 0, "Epoch the metrics are recorded for.")
	flags.Float64Var(&f.loss, "loss", math.NaN(), "Loss to record along with the metrics, if known.")
	_ = cmd.MarkFlagRequired("truth")
	_ = cmd.MarkFlagRequired("pred")
	return cmd
}

func evaluate(ctx context.Context, f evaluateFlags, dataDir string) error {
	truthNames, yTrue, err := metrics.ReadMatrixCSVFile(f.truthPath)
	if err != nil {
		return err
	}
	predNames, yPred, err := metrics.ReadMatrixCSVFile(f.predPath)
	if err != nil {
		return err
	}
	if !slices.Equal(truthNames, predNames) {
		return errors.Errorf("class columns of %q and %q differ: %q != %q", f.truthPath, f.predPath, truthNames, predNames)
	}
	if len(yTrue) != len(yPred) {
		return errors.Errorf("%q has %d samples, but %q has %d", f.truthPath, len(yTrue), f.predPath, len(yPred))
	}
	klog.Infof("evaluating %s samples of %d classes", humanize.Comma(int64(len(yTrue))), len(truthNames))

	report := metrics.ComputeWithThreshold(yTrue, yPred, f.threshold)
	stats := metrics.PerClass(yTrue, yPred, truthNames, f.threshold)
	commandline.ReportMetrics(os.Stdout, fmt.Sprintf("Metrics (threshold %g)", f.threshold), report)
	commandline.ReportClassStats(os.Stdout, stats)
	if f.confusion {
		printConfusionMatrices(truthNames, metrics.ConfusionMatrices(yTrue, yPred, f.threshold))
	}

	if f.perClassOut != "" {
		if err := writeClassStats(f.perClassOut, stats); err != nil {
			return err
		}
	}
	if f.jsonOut != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode metrics")
		}
		if err := os.WriteFile(f.jsonOut, data, 0644); err != nil {
			return errors.Wrapf(err, "failed to write %q", f.jsonOut)
		}
	}
	if f.dbPath != "" {
		return recordEvaluation(ctx, f, dataDir, report)
	}
	return nil
}

func writeClassStats(filePath string, stats []metrics.ClassStats) (err error) {
	out, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close %q", filePath)
		}
	}()
	if err = metrics.WriteClassStatsCSV(out, stats); err != nil {
		return err
	}
	klog.Infof("per-class metrics written to %q", filePath)
	return nil
}

func printConfusionMatrices(names []string, matrices []metrics.ConfusionMatrix) {
	table := commandline.NewTable([]string{"Class", "TN", "FP", "FN", "TP"}, lipgloss.Left, lipgloss.Right)
	for classIdx, m := range matrices {
		table.AddRow(m[1][1] == 0 && m[1][0] > 0, names[classIdx],
			humanize.Comma(int64(m[0][0])), humanize.Comma(int64(m[0][1])),
			humanize.Comma(int64(m[1][0])), humanize.Comma(int64(m[1][1])))
	}
	fmt.Println(commandline.TitleStyle.Render("Confusion matrices"))
	fmt.Println(table.Render())
}

func recordEvaluation(ctx context.Context, f evaluateFlags, dataDir string, report metrics.Report) error {
	split, err := metadata.ParseSplit(f.splitName)
	if err != nil {
		return err
	}
	store, err := history.Open(f.dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runID := f.runID
	if runID == "" {
		run, err := store.CreateRun(ctx, f.runName, dataDir)
		if err != nil {
			return err
		}
		runID = run.ID
		fmt.Printf("Created run %s\n", runID)
	}
	err = store.Record(ctx, history.EpochRecord{
		RunID:  runID,
		Split:  split,
		Epoch:  f.epoch,
		Loss:   f.loss,
		Report: report,
	})
	if err != nil {
		return err
	}
	klog.Infof("recorded %s metrics of epoch %d in run %s", split, f.epoch, runID)
	return nil
}
