// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/leaflens/leaflens/pkg/core/tensors"
	"golang.org/x/exp/constraints"
)

// Accumulator collects the ground truth and predictions of the batches of an epoch, so the metrics are
// computed over the whole epoch. It is not safe for concurrent use.
type Accumulator[T constraints.Float] struct {
	yTrue, yPred [][]T
	numClasses   int
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator[T constraints.Float]() *Accumulator[T] {
	return &Accumulator[T]{numClasses: -1}
}

// Add the rows of a batch. Rows are copied.
//
// It panics if the shapes are invalid or if the number of classes differs from previous batches.
func (a *Accumulator[T]) Add(yTrue, yPred [][]T) {
	numClasses := checkShapes(yTrue, yPred)
	if len(yTrue) == 0 {
		return
	}
	if a.numClasses >= 0 && numClasses != a.numClasses {
		exceptions.Panicf("metrics.Accumulator: batch has %d classes, previous batches had %d", numClasses, a.numClasses)
	}
	a.numClasses = numClasses
	for ii := range yTrue {
		a.yTrue = append(a.yTrue, slices.Clone(yTrue[ii]))
		a.yPred = append(a.yPred, slices.Clone(yPred[ii]))
	}
}

// Len returns the number of samples accumulated.
func (a *Accumulator[T]) Len() int { return len(a.yTrue) }

// Reset discards the accumulated samples.
func (a *Accumulator[T]) Reset() {
	a.yTrue, a.yPred = nil, nil
	a.numClasses = -1
}

// Report computes the metrics over all accumulated samples, with DefaultThreshold.
func (a *Accumulator[T]) Report() Report {
	return Compute(a.yTrue, a.yPred)
}

// PerClass returns the per-class metrics over all accumulated samples. See PerClass.
func (a *Accumulator[T]) PerClass(names []string, threshold float64) []ClassStats {
	return PerClass(a.yTrue, a.yPred, names, threshold)
}

// Rows converts a rank-2 tensor shaped `[N, C]`, like loader.Batch.Labels, to N rows. Rows share the tensor data.
func Rows(t *tensors.Tensor) [][]float32 {
	dims := t.Shape()
	if len(dims) != 2 {
		exceptions.Panicf("metrics.Rows requires a rank-2 tensor, got shape %v", dims)
	}
	flat := t.Flat()
	rows := make([][]float32, dims[0])
	for ii := range rows {
		rows[ii] = flat[ii*dims[1] : (ii+1)*dims[1] : (ii+1)*dims[1]]
	}
	return rows
}
