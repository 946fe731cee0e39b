// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package history keeps the per-epoch metrics of training runs in a SQLite database, and plots them.
//
// A training driver creates a Run, and after each epoch records the loss and metrics.Report of the train
// and validation splits. The store can later be queried to compare runs, or to plot the training curves.
package history

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/pkg/metrics"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data_dir TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS epoch_metrics (
		run_id TEXT NOT NULL,
		split TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		loss DOUBLE,
		precision DOUBLE,
		recall DOUBLE,
		f1 DOUBLE,
		precision_micro DOUBLE,
		recall_micro DOUBLE,
		f1_micro DOUBLE,
		accuracy DOUBLE,
		subset_accuracy DOUBLE,
		hamming_loss DOUBLE,
		auc DOUBLE,
		PRIMARY KEY (run_id, split, epoch),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
`

// Store of runs and their epoch metrics.
type Store struct {
	db *sql.DB
}

// Run is one training run.
type Run struct {
	ID        string
	Name      string
	DataDir   string
	CreatedAt time.Time
}

// EpochRecord are the metrics of one split at the end of an epoch.
type EpochRecord struct {
	RunID string
	Split metadata.Split
	Epoch int

	// Loss is NaN if not known.
	Loss float64

	Report metrics.Report
}

// Open the store at path, creating the database and its tables if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history database %q", path)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to create history tables in %q", path)
	}
	klog.V(1).Infof("opened history database %q", path)
	return &Store{db: db}, nil
}

// Close the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun registers a new run, with a random ID.
func (s *Store) CreateRun(ctx context.Context, name, dataDir string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Name:      name,
		DataDir:   dataDir,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, name, data_dir, created_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Name, run.DataDir, run.CreatedAt.UnixMicro())
	if err != nil {
		return Run{}, errors.Wrapf(err, "failed to create run %q", name)
	}
	return run, nil
}

// Runs returns all runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT run_id, name, data_dir, created_at FROM runs ORDER BY created_at, run_id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt int64
		if err := rows.Scan(&run.ID, &run.Name, &run.DataDir, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to read run")
		}
		run.CreatedAt = time.UnixMicro(createdAt).UTC()
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to list runs")
}

// Record the metrics of an epoch. Recording the same run, split and epoch again replaces the previous values.
func (s *Store) Record(ctx context.Context, rec EpochRecord) error {
	loss := sql.NullFloat64{Float64: rec.Loss, Valid: !math.IsNaN(rec.Loss)}
	r := rec.Report
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO epoch_metrics (
			run_id, split, epoch, loss,
			precision, recall, f1, precision_micro, recall_micro, f1_micro,
			accuracy, subset_accuracy, hamming_loss, auc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Split.String(), rec.Epoch, loss,
		r.Precision, r.Recall, r.F1, r.PrecisionMicro, r.RecallMicro, r.F1Micro,
		r.Accuracy, r.SubsetAccuracy, r.HammingLoss, r.AUC)
	if err != nil {
		return errors.Wrapf(err, "failed to record epoch %d of split %s for run %s", rec.Epoch, rec.Split, rec.RunID)
	}
	return nil
}

// History returns the records of a run, ordered by split (train, val, test) and epoch.
func (s *Store) History(ctx context.Context, runID string) ([]EpochRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT split, epoch, loss,
			precision, recall, f1, precision_micro, recall_micro, f1_micro,
			accuracy, subset_accuracy, hamming_loss, auc
		FROM epoch_metrics WHERE run_id = ?
		ORDER BY CASE split WHEN 'train' THEN 0 WHEN 'val' THEN 1 ELSE 2 END, epoch`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query history of run %s", runID)
	}
	defer func() { _ = rows.Close() }()

	var records []EpochRecord
	for rows.Next() {
		rec := EpochRecord{RunID: runID}
		var split string
		var loss sql.NullFloat64
		r := &rec.Report
		if err := rows.Scan(&split, &rec.Epoch, &loss,
			&r.Precision, &r.Recall, &r.F1, &r.PrecisionMicro, &r.RecallMicro, &r.F1Micro,
			&r.Accuracy, &r.SubsetAccuracy, &r.HammingLoss, &r.AUC); err != nil {
			return nil, errors.Wrapf(err, "failed to read history of run %s", runID)
		}
		if rec.Split, err = metadata.ParseSplit(split); err != nil {
			return nil, errors.WithMessagef(err, "history of run %s", runID)
		}
		rec.Loss = math.NaN()
		if loss.Valid {
			rec.Loss = loss.Float64
		}
		records = append(records, rec)
	}
	return records, errors.Wrapf(rows.Err(), "failed to read history of run %s", runID)
}
