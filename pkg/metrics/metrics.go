// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics computes multi-label classification metrics from ground-truth and predicted matrices.
//
// Both matrices are shaped `[N][C]` (N samples, C classes): ground truth holds 0 or 1, and predictions hold
// probabilities in [0, 1] (after a sigmoid), binarized with a threshold (DefaultThreshold) where a prediction is
// positive if strictly greater than the threshold.
//
// Degenerate inputs (empty batch, classes never present) never fail: the affected metrics are reported as 0.
// Matrices with mismatched or ragged shapes are a bug of the caller, and panic.
package metrics

import (
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// DefaultThreshold used to binarize predictions.
const DefaultThreshold = 0.5

// Report holds the aggregate metrics of a batch or epoch. JSON keys match the names used by training logs.
type Report struct {
	// Precision, Recall and F1 are macro averages: per class, then averaged uniformly over the classes that
	// appear in the ground truth or in the predictions.
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// PrecisionMicro, RecallMicro and F1Micro pool the counts of all (sample, class) pairs.
	PrecisionMicro float64 `json:"precision_micro"`
	RecallMicro    float64 `json:"recall_micro"`
	F1Micro        float64 `json:"f1_micro"`

	// Accuracy is the fraction of the N*C label comparisons that are correct.
	Accuracy float64 `json:"accuracy"`

	// SubsetAccuracy is the fraction of samples whose whole label vector is correct.
	SubsetAccuracy float64 `json:"subset_accuracy"`

	// HammingLoss is the fraction of the N*C labels that are wrong.
	HammingLoss float64 `json:"hamming_loss"`

	// AUC is the mean ROC AUC over the classes that have both positive and negative ground-truth samples,
	// or 0 if there are none.
	AUC float64 `json:"auc"`
}

// Keys of Report.Map, in display order.
var Keys = []string{
	"precision", "recall", "f1",
	"precision_micro", "recall_micro", "f1_micro",
	"accuracy", "subset_accuracy", "hamming_loss", "auc",
}

// Map returns the report keyed by its JSON names, see Keys.
func (r Report) Map() map[string]float64 {
	return map[string]float64{
		"precision":       r.Precision,
		"recall":          r.Recall,
		"f1":              r.F1,
		"precision_micro": r.PrecisionMicro,
		"recall_micro":    r.RecallMicro,
		"f1_micro":        r.F1Micro,
		"accuracy":        r.Accuracy,
		"subset_accuracy": r.SubsetAccuracy,
		"hamming_loss":    r.HammingLoss,
		"auc":             r.AUC,
	}
}

// counts of one class (or pooled over all classes).
type counts struct {
	TP, FP, FN, TN int
}

func (c *counts) add(truth, predicted bool) {
	switch {
	case truth && predicted:
		c.TP++
	case predicted:
		c.FP++
	case truth:
		c.FN++
	default:
		c.TN++
	}
}

// ratio returns num/den, or 0 if den is 0.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c counts) precision() float64 { return ratio(c.TP, c.TP+c.FP) }
func (c counts) recall() float64    { return ratio(c.TP, c.TP+c.FN) }
func (c counts) f1() float64        { return ratio(2*c.TP, 2*c.TP+c.FP+c.FN) }

// present reports whether the class appears in the ground truth or in the predictions.
func (c counts) present() bool { return c.TP+c.FP+c.FN > 0 }

// checkShapes panics if the matrices are ragged or have different shapes. It returns the number of classes.
func checkShapes[T constraints.Float](yTrue, yPred [][]T) int {
	if len(yTrue) != len(yPred) {
		exceptions.Panicf("metrics: ground truth has %d samples, but predictions have %d", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0
	}
	numClasses := len(yTrue[0])
	for ii := range yTrue {
		if len(yTrue[ii]) != numClasses || len(yPred[ii]) != numClasses {
			exceptions.Panicf("metrics: sample #%d has %d ground truth and %d predicted labels, expected %d classes",
				ii, len(yTrue[ii]), len(yPred[ii]), numClasses)
		}
	}
	return numClasses
}

// isPositive reports whether a ground-truth value is a positive label.
func isPositive[T constraints.Float](v T) bool { return v >= 0.5 }

func hasNaN[T constraints.Float](values []T) bool {
	return slices.ContainsFunc(values, func(v T) bool { return math.IsNaN(float64(v)) })
}

// perClassCounts returns the counts of each class, and the number of samples whose labels are all correct.
func perClassCounts[T constraints.Float](yTrue, yPred [][]T, threshold float64) (perClass []counts, exactRows int) {
	numClasses := checkShapes(yTrue, yPred)
	perClass = make([]counts, numClasses)
	for ii := range yTrue {
		exact := true
		for c := range numClasses {
			truth := isPositive(yTrue[ii][c])
			predicted := float64(yPred[ii][c]) > threshold
			perClass[c].add(truth, predicted)
			if truth != predicted {
				exact = false
			}
		}
		if exact {
			exactRows++
		}
	}
	return
}

// Compute the metrics of the predictions yPred (probabilities) against the ground truth yTrue (0 or 1), both
// shaped `[N][C]`, using DefaultThreshold.
//
// It panics if the shapes differ or are ragged.
func Compute[T constraints.Float](yTrue, yPred [][]T) Report {
	return ComputeWithThreshold(yTrue, yPred, DefaultThreshold)
}

// ComputeWithThreshold is like Compute, with a custom binarization threshold: predictions strictly greater than
// threshold are positive.
func ComputeWithThreshold[T constraints.Float](yTrue, yPred [][]T, threshold float64) Report {
	perClass, exactRows := perClassCounts(yTrue, yPred, threshold)
	var r Report

	// Macro averages, over the classes present.
	var precisions, recalls, f1s []float64
	var pooled counts
	for _, c := range perClass {
		pooled.TP += c.TP
		pooled.FP += c.FP
		pooled.FN += c.FN
		pooled.TN += c.TN
		if !c.present() {
			continue
		}
		precisions = append(precisions, c.precision())
		recalls = append(recalls, c.recall())
		f1s = append(f1s, c.f1())
	}
	r.Precision = mean(precisions)
	r.Recall = mean(recalls)
	r.F1 = mean(f1s)

	r.PrecisionMicro = pooled.precision()
	r.RecallMicro = pooled.recall()
	r.F1Micro = pooled.f1()

	numLabels := pooled.TP + pooled.FP + pooled.FN + pooled.TN
	r.Accuracy = ratio(pooled.TP+pooled.TN, numLabels)
	r.HammingLoss = ratio(pooled.FP+pooled.FN, numLabels)
	r.SubsetAccuracy = ratio(exactRows, len(yTrue))
	r.AUC = MeanAUC(yTrue, yPred)
	return r
}

// mean of values, 0 if empty.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// ClassAUC returns the area under the ROC curve of one class, given its ground truth and scores, and whether it
// is defined: it requires both positive and negative ground-truth samples, and no NaN values.
func ClassAUC[T constraints.Float](truth, scores []T) (auc float64, ok bool) {
	if len(truth) != len(scores) {
		exceptions.Panicf("metrics.ClassAUC: %d ground truth values, but %d scores", len(truth), len(scores))
	}
	if hasNaN(truth) || hasNaN(scores) {
		return 0, false
	}
	numPositives := 0
	for _, v := range truth {
		if isPositive(v) {
			numPositives++
		}
	}
	if numPositives == 0 || numPositives == len(truth) {
		return 0, false
	}

	// stat.ROC requires the scores sorted in ascending order.
	order := make([]int, len(scores))
	for ii := range order {
		order[ii] = ii
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] < scores[b]:
			return -1
		case scores[a] > scores[b]:
			return 1
		}
		return 0
	})
	y := make([]float64, len(order))
	classes := make([]bool, len(order))
	for ii, idx := range order {
		y[ii] = float64(scores[idx])
		classes[ii] = isPositive(truth[idx])
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), true
}

// MeanAUC is the mean of ClassAUC over the classes where it is defined, or 0 if it is not defined for any class.
//
// A NaN anywhere in the matrices makes the whole AUC undefined, and it returns 0.
func MeanAUC[T constraints.Float](yTrue, yPred [][]T) float64 {
	numClasses := checkShapes(yTrue, yPred)
	var aucs []float64
	truth := make([]T, len(yTrue))
	scores := make([]T, len(yTrue))
	for c := range numClasses {
		for ii := range yTrue {
			truth[ii] = yTrue[ii][c]
			scores[ii] = yPred[ii][c]
		}
		if hasNaN(truth) || hasNaN(scores) {
			return 0
		}
		if auc, ok := ClassAUC(truth, scores); ok {
			aucs = append(aucs, auc)
		}
	}
	return mean(aucs)
}
