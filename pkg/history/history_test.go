// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s := must.M1(Open(filepath.Join(t.TempDir(), "history.db")))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// trainingRecords simulates a run with improving metrics.
func trainingRecords(runID string, numEpochs int) []EpochRecord {
	var records []EpochRecord
	for epoch := range numEpochs {
		progress := float64(epoch+1) / float64(numEpochs)
		for _, split := range []metadata.Split{metadata.Train, metadata.Validation} {
			records = append(records, EpochRecord{
				RunID: runID,
				Split: split,
				Epoch: epoch,
				Loss:  1 - 0.8*progress,
				Report: metrics.Report{
					Precision: 0.5 + 0.4*progress,
					Recall:    0.4 + 0.5*progress,
					F1:        0.45 + 0.45*progress,
					AUC:       0.6 + 0.3*progress,
				},
			})
		}
	}
	return records
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	run := must.M1(s.CreateRun(ctx, "resnet-baseline", "/data/plantvillage"))
	require.NotEmpty(t, run.ID)
	other := must.M1(s.CreateRun(ctx, "efficientnet", "/data/ip102"))
	assert.NotEqual(t, run.ID, other.ID)

	runs := must.M1(s.Runs(ctx))
	require.Len(t, runs, 2)
	assert.ElementsMatch(t, []Run{run, other}, runs)

	want := trainingRecords(run.ID, 3)
	for _, rec := range want {
		require.NoError(t, s.Record(ctx, rec))
	}
	got := must.M1(s.History(ctx, run.ID))
	require.Len(t, got, len(want))
	// History is ordered by split, then epoch.
	for ii, rec := range got {
		wantSplit := metadata.Train
		if ii >= 3 {
			wantSplit = metadata.Validation
		}
		assert.Equal(t, wantSplit, rec.Split)
		assert.Equal(t, ii%3, rec.Epoch)
		assert.Equal(t, want[2*rec.Epoch+int(rec.Split)], rec)
	}
	assert.Empty(t, must.M1(s.History(ctx, other.ID)))
}

func TestStoreReplaceAndNaN(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	run := must.M1(s.CreateRun(ctx, "run", "data"))
	rec := EpochRecord{RunID: run.ID, Split: metadata.Test, Epoch: 0, Loss: math.NaN(), Report: metrics.Report{F1: 0.3}}
	require.NoError(t, s.Record(ctx, rec))
	rec.Report.F1 = 0.7
	require.NoError(t, s.Record(ctx, rec))

	got := must.M1(s.History(ctx, run.ID))
	require.Len(t, got, 1)
	assert.True(t, math.IsNaN(got[0].Loss))
	assert.Equal(t, 0.7, got[0].Report.F1)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s := must.M1(Open(path))
	run := must.M1(s.CreateRun(ctx, "run", "data"))
	require.NoError(t, s.Close())

	s = must.M1(Open(path))
	defer func() { _ = s.Close() }()
	runs := must.M1(s.Runs(ctx))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestPlotTraining(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "training_history.png")
	records := trainingRecords("run", 5)
	records[0].Loss = math.NaN()
	require.NoError(t, PlotTraining(records, filePath))

	f := must.M1(os.Open(filePath))
	defer func() { _ = f.Close() }()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, cfg.Height)

	// No records still produces the (empty) grid.
	require.NoError(t, PlotTraining(nil, filepath.Join(t.TempDir(), "empty.png")))
}
