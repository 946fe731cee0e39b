// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromShape(t *testing.T) {
	x := FromShape(2, 3, 4)
	assert.Equal(t, []int{2, 3, 4}, x.Shape())
	assert.Equal(t, 3, x.Rank())
	assert.Equal(t, 24, x.Size())
	assert.Equal(t, uintptr(96), x.Memory())

	x.Set(7, 1, 2, 3)
	assert.Equal(t, float32(7), x.At(1, 2, 3))
	assert.Equal(t, float32(7), x.Flat()[23])
	require.Panics(t, func() { x.At(2, 0, 0) })
	require.Panics(t, func() { x.At(0, 0) })
	require.Panics(t, func() { FromShape(-1) })

	scalar := FromShape()
	assert.Equal(t, 1, scalar.Size())
	assert.Equal(t, float32(0), scalar.At())
}

func TestFromFlatAndDimensions(t *testing.T) {
	x := FromFlatAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, float32(4), x.At(1, 0))
	require.Panics(t, func() { FromFlatAndDimensions([]float32{1, 2, 3}, 2, 2) })
}

func TestStack(t *testing.T) {
	a := FromFlatAndDimensions([]float32{1, 2}, 2)
	b := FromFlatAndDimensions([]float32{3, 4}, 2)
	s := Stack([]*Tensor{a, b})
	assert.Equal(t, []int{2, 2}, s.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4}, s.Flat())

	// The stacked tensor doesn't share data with its inputs.
	a.Set(10, 0)
	assert.Equal(t, float32(1), s.At(0, 0))

	require.Panics(t, func() { Stack(nil) })
	require.Panics(t, func() { Stack([]*Tensor{a, FromShape(3)}) })
}

func TestFromRows(t *testing.T) {
	x := FromRows([][]float32{{1, 0, 0}, {0, 1, 0}})
	assert.Equal(t, []int{2, 3}, x.Shape())
	assert.Equal(t, float32(1), x.At(1, 1))
	assert.Equal(t, []int{0, 0}, FromRows(nil).Shape())
	require.Panics(t, func() { FromRows([][]float32{{1}, {1, 2}}) })
}

func TestFloat16(t *testing.T) {
	x := FromFlatAndDimensions([]float32{0.5, -2, 1024}, 3)
	half := x.Float16()
	require.Len(t, half, 3)
	for ii, v := range x.Flat() {
		assert.Equal(t, v, half[ii].Float32())
	}
	assert.Equal(t, "(Float32)[3] [0.5 -2 1024]", x.String())

	maxErr, meanErr := x.Float16Error()
	assert.Zero(t, maxErr)
	assert.Zero(t, meanErr)

	// 0.1 has no exact half precision representation.
	x = FromFlatAndDimensions([]float32{0.1, 0.5}, 2)
	maxErr, meanErr = x.Float16Error()
	assert.Greater(t, maxErr, 0.0)
	assert.Less(t, maxErr, 1e-4)
	assert.InDelta(t, maxErr/2, meanErr, 1e-12)

	maxErr, _ = FromFlatAndDimensions([]float32{1e6}, 1).Float16Error()
	assert.True(t, math.IsInf(maxErr, 1))
}
