// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// ClassStats are the metrics of one class.
type ClassStats struct {
	Class     string  `csv:"class" json:"class"`
	Precision float64 `csv:"precision" json:"precision"`
	Recall    float64 `csv:"recall" json:"recall"`
	F1        float64 `csv:"f1" json:"f1"`

	// Support is the number of positive ground-truth samples.
	Support int `csv:"support" json:"support"`

	TP int `csv:"tp" json:"tp"`
	FP int `csv:"fp" json:"fp"`
	FN int `csv:"fn" json:"fn"`
	TN int `csv:"tn" json:"tn"`
}

// PerClass returns the metrics of each class. names are the class names, usually the classes.Registry classes,
// and if nil classes are named "class_<idx>".
//
// It panics if the shapes are invalid or if names doesn't have one entry per class.
func PerClass[T constraints.Float](yTrue, yPred [][]T, names []string, threshold float64) []ClassStats {
	perClass, _ := perClassCounts(yTrue, yPred, threshold)
	if names != nil && len(names) != len(perClass) {
		exceptions.Panicf("metrics.PerClass: %d class names given for %d classes", len(names), len(perClass))
	}
	stats := make([]ClassStats, len(perClass))
	for idx, c := range perClass {
		name := fmt.Sprintf("class_%d", idx)
		if names != nil {
			name = names[idx]
		}
		stats[idx] = ClassStats{
			Class:     name,
			Precision: c.precision(),
			Recall:    c.recall(),
			F1:        c.f1(),
			Support:   c.TP + c.FN,
			TP:        c.TP,
			FP:        c.FP,
			FN:        c.FN,
			TN:        c.TN,
		}
	}
	return stats
}

// ConfusionMatrix of one class: [[TN, FP], [FN, TP]], rows are the ground truth and columns the prediction.
type ConfusionMatrix [2][2]int

// ConfusionMatrices returns one 2x2 confusion matrix per class.
func ConfusionMatrices[T constraints.Float](yTrue, yPred [][]T, threshold float64) []ConfusionMatrix {
	perClass, _ := perClassCounts(yTrue, yPred, threshold)
	matrices := make([]ConfusionMatrix, len(perClass))
	for idx, c := range perClass {
		matrices[idx] = ConfusionMatrix{{c.TN, c.FP}, {c.FN, c.TP}}
	}
	return matrices
}

// WriteClassStatsCSV writes the per-class metrics as CSV, with a header.
func WriteClassStatsCSV(w io.Writer, stats []ClassStats) error {
	return errors.Wrap(gocsv.Marshal(stats, w), "failed to write per-class metrics")
}
