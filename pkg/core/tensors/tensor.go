// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, a dense multidimensional array of float32 values stored in
// row-major order.
//
// Tensors are what the dataset hands over to the model boundary: images shaped `[channels, height, width]`,
// batches of images shaped `[batch_size, channels, height, width]` and labels shaped `[batch_size, num_classes]`.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(dimensions ...int): creates a tensor with the given dimensions, and zero values.
//   - FromFlatAndDimensions(flat []float32, dimensions ...int): uses the given flat data, which must
//     have the size of the dimensions.
//   - Stack(tensors): stacks tensors of equal shape along a new leading axis.
package tensors

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
)

// Tensor is a multidimensional array of float32.
//
// It is not safe for concurrent mutation, but it can be read concurrently.
type Tensor struct {
	dimensions []int
	flat       []float32
}

// sizeOf returns the number of elements of a tensor with the given dimensions. It panics on negative dimensions.
func sizeOf(dimensions []int) int {
	size := 1
	for axis, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("invalid negative dimension %d for axis %d in dimensions %v", dim, axis, dimensions)
		}
		size *= dim
	}
	return size
}

// FromShape returns a zero-initialized tensor with the given dimensions.
// A tensor without dimensions is a scalar.
func FromShape(dimensions ...int) *Tensor {
	return &Tensor{
		dimensions: slices.Clone(dimensions),
		flat:       make([]float32, sizeOf(dimensions)),
	}
}

// FromFlatAndDimensions creates a tensor that owns the given flat data (it is not copied).
// It panics if the size of flat doesn't match the dimensions.
func FromFlatAndDimensions(flat []float32, dimensions ...int) *Tensor {
	if size := sizeOf(dimensions); size != len(flat) {
		exceptions.Panicf("tensors.FromFlatAndDimensions: flat data has %d elements, but dimensions %v require %d",
			len(flat), dimensions, size)
	}
	return &Tensor{dimensions: slices.Clone(dimensions), flat: flat}
}

// Shape returns a copy of the dimensions of the tensor.
func (t *Tensor) Shape() []int {
	return slices.Clone(t.dimensions)
}

// Rank is the number of axes.
func (t *Tensor) Rank() int {
	return len(t.dimensions)
}

// Size is the total number of elements.
func (t *Tensor) Size() int {
	return len(t.flat)
}

// Flat returns the underlying data, in row-major order. Changes to the slice are reflected in the tensor.
func (t *Tensor) Flat() []float32 {
	return t.flat
}

// Memory returns the number of bytes used by the data.
func (t *Tensor) Memory() uintptr {
	return uintptr(len(t.flat)) * 4
}

// flatIndex converts multi-dimensional indices to the position in the flat data.
func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.dimensions) {
		exceptions.Panicf("tensor of rank %d indexed with %d indices", len(t.dimensions), len(indices))
	}
	pos := 0
	for axis, idx := range indices {
		if idx < 0 || idx >= t.dimensions[axis] {
			exceptions.Panicf("index %d out of range for axis %d of tensor with dimensions %v", idx, axis, t.dimensions)
		}
		pos = pos*t.dimensions[axis] + idx
	}
	return pos
}

// At returns the element at the given indices. It panics if indices are out of range.
func (t *Tensor) At(indices ...int) float32 {
	return t.flat[t.flatIndex(indices)]
}

// Set the element at the given indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.flat[t.flatIndex(indices)] = value
}

// Float16 returns a copy of the data converted to half precision, for consumers that store or
// transfer samples in float16.
func (t *Tensor) Float16() []float16.Float16 {
	half := make([]float16.Float16, len(t.flat))
	for ii, v := range t.flat {
		half[ii] = float16.Fromfloat32(v)
	}
	return half
}

// Float16Error returns the maximum and mean absolute error of converting the data to half precision with
// Float16. Values beyond the float16 range become infinities, and so does the error.
func (t *Tensor) Float16Error() (maxErr, meanErr float64) {
	if len(t.flat) == 0 {
		return 0, 0
	}
	var sum float64
	for ii, h := range t.Float16() {
		diff := math.Abs(float64(h.Float32()) - float64(t.flat[ii]))
		maxErr = max(maxErr, diff)
		sum += diff
	}
	return maxErr, sum / float64(len(t.flat))
}

// Stack tensors of the same shape into a new tensor with an extra leading axis of dimension len(tensors).
//
// It panics if tensors is empty or if the shapes differ.
func Stack(tensors []*Tensor) *Tensor {
	if len(tensors) == 0 {
		exceptions.Panicf("tensors.Stack requires at least one tensor")
	}
	dims := tensors[0].dimensions
	stacked := FromShape(append([]int{len(tensors)}, dims...)...)
	size := tensors[0].Size()
	for ii, t := range tensors {
		if !slices.Equal(t.dimensions, dims) {
			exceptions.Panicf("tensors.Stack: tensor #%d has dimensions %v, but tensor #0 has dimensions %v",
				ii, t.dimensions, dims)
		}
		copy(stacked.flat[ii*size:(ii+1)*size], t.flat)
	}
	return stacked
}

// FromRows creates a tensor shaped `[len(rows), len(rows[0])]`. It panics if rows are ragged.
func FromRows(rows [][]float32) *Tensor {
	if len(rows) == 0 {
		return FromShape(0, 0)
	}
	width := len(rows[0])
	t := FromShape(len(rows), width)
	for ii, row := range rows {
		if len(row) != width {
			exceptions.Panicf("tensors.FromRows: row #%d has %d elements, but row #0 has %d", ii, len(row), width)
		}
		copy(t.flat[ii*width:], row)
	}
	return t
}

// String implements fmt.Stringer. It only prints the shape and, for small tensors, the values.
func (t *Tensor) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "(Float32)%v", t.dimensions)
	if len(t.flat) <= 16 {
		_, _ = fmt.Fprintf(&sb, " %v", t.flat)
	}
	return sb.String()
}
