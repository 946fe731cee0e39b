// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage is 3 pixels wide and 2 tall, with distinct channel values.
func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := range 2 {
		for x := range 3 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 100), G: uint8(y * 255), B: 51, A: 255})
		}
	}
	return img
}

func TestToTensorLayouts(t *testing.T) {
	img := testImage()
	first := ToTensor().Single(img)
	require.Equal(t, []int{3, 2, 3}, first.Shape())
	assert.InDelta(t, 200.0/255, first.At(0, 1, 2), 1e-6) // Red of pixel (x=2, y=1).
	assert.InDelta(t, 1.0, first.At(1, 1, 0), 1e-6)       // Green of row 1.
	assert.InDelta(t, 0.2, first.At(2, 0, 0), 1e-6)       // Blue.

	last := ToTensor().Channels(ChannelsLast).Single(img)
	require.Equal(t, []int{2, 3, 3}, last.Shape())
	for c := range 3 {
		for y := range 2 {
			for x := range 3 {
				assert.Equal(t, first.At(c, y, x), last.At(y, x, c))
			}
		}
	}
}

func TestToTensorDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 0, A: 64})
	x := ToTensor().Single(img)
	assert.InDelta(t, 200.0/255, x.At(0, 0, 0), 1e-3)
	assert.InDelta(t, 100.0/255, x.At(1, 0, 0), 1e-3)
	assert.InDelta(t, 0.0, x.At(2, 0, 0), 1e-6)
}

func TestToTensorNormalize(t *testing.T) {
	img := testImage()
	tt := ToTensor().Normalize(ImageNetMean, ImageNetStd)
	x := tt.Single(img)
	assert.InDelta(t, (0.2-0.406)/0.225, x.At(2, 0, 0), 1e-5)
	assert.InDelta(t, (0-0.485)/0.229, x.At(0, 0, 0), 1e-5)

	// ToImage undoes the normalization.
	back := tt.ToImage(x)
	assert.Equal(t, img.Bounds(), back.Bounds())
	for y := range 2 {
		for x := range 3 {
			assert.Equal(t, img.NRGBAAt(x, y), back.NRGBAAt(x, y))
		}
	}

	require.Panics(t, func() { ToTensor().Normalize(ImageNetMean, [3]float32{1, 0, 1}) })
}

func TestToTensorBatch(t *testing.T) {
	img := testImage()
	batch := ToTensor().Batch([]image.Image{img, img})
	require.Equal(t, []int{2, 3, 2, 3}, batch.Shape())
	single := ToTensor().Single(img)
	assert.Equal(t, single.Flat(), batch.Flat()[single.Size():])

	require.Panics(t, func() {
		ToTensor().Batch([]image.Image{img, image.NewNRGBA(image.Rect(0, 0, 1, 1))})
	})
}
