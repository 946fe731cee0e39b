// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package images provides several functions to transform images back and
// forth from tensors.
package images

import (
	"image"
	"image/color"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/leaflens/leaflens/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// ChannelsAxisConfig indicates if a tensor with an image has the channel axis
// coming last (last axis) or first (first axis after batch axis).
type ChannelsAxisConfig uint8

const (
	ChannelsFirst ChannelsAxisConfig = iota
	ChannelsLast
)

// String implements fmt.Stringer.
func (c ChannelsAxisConfig) String() string {
	switch c {
	case ChannelsFirst:
		return "ChannelsFirst"
	case ChannelsLast:
		return "ChannelsLast"
	}
	return "ChannelsAxisConfig(?)"
}

// ImageNetMean and ImageNetStd are the per-channel (RGB) statistics of ImageNet, used to normalize
// inputs of models pretrained on it.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ToTensorConfig holds the configuration returned by the ToTensor function. Once
// configured, use Single or Batch to actually convert.
type ToTensorConfig struct {
	channels  ChannelsAxisConfig
	maxValue  float64
	mean, std [3]float32
}

// ToTensor converts an image (or batch) to a float32 tensor with 3 (RGB) channels. The alpha
// channel is dropped.
//
// It returns a configuration object that can be further configured. Once set, use Single or Batch
// methods to convert an image or a batch of images.
//
// The default is channels-first, values in [0, 1] and no normalization.
func ToTensor() *ToTensorConfig {
	return &ToTensorConfig{
		channels: ChannelsFirst,
		maxValue: 1.0,
		std:      [3]float32{1, 1, 1},
	}
}

// Channels sets the layout of the channels axis.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) Channels(config ChannelsAxisConfig) *ToTensorConfig {
	tt.channels = config
	return tt
}

// MaxValue sets the value a fully saturated channel maps to, before normalization. Default is 1.0.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) MaxValue(v float64) *ToTensorConfig {
	tt.maxValue = v
	return tt
}

// Normalize each channel c with `(value - mean[c]) / std[c]`, after scaling to MaxValue.
// It panics if any std is 0.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) Normalize(mean, std [3]float32) *ToTensorConfig {
	for c, s := range std {
		if s == 0 {
			exceptions.Panicf("images.ToTensor().Normalize(): std for channel %d is 0", c)
		}
	}
	tt.mean, tt.std = mean, std
	return tt
}

// Single converts the given img to a tensor, shaped `[3, height, width]` for ChannelsFirst or
// `[height, width, 3]` for ChannelsLast.
func (tt *ToTensorConfig) Single(img image.Image) *tensors.Tensor {
	size := img.Bounds().Size()
	var t *tensors.Tensor
	if tt.channels == ChannelsFirst {
		t = tensors.FromShape(3, size.Y, size.X)
	} else {
		t = tensors.FromShape(size.Y, size.X, 3)
	}
	tt.fill(t.Flat(), img)
	return t
}

// Batch converts the given images to a tensor, shaped `[batch_size, 3, height, width]` for ChannelsFirst or
// `[batch_size, height, width, 3]` for ChannelsLast.
//
// It panics if images have different sizes.
func (tt *ToTensorConfig) Batch(images []image.Image) *tensors.Tensor {
	if len(images) == 0 {
		exceptions.Panicf("images.ToTensor().Batch() requires at least one image")
	}
	size := images[0].Bounds().Size()
	var t *tensors.Tensor
	if tt.channels == ChannelsFirst {
		t = tensors.FromShape(len(images), 3, size.Y, size.X)
	} else {
		t = tensors.FromShape(len(images), size.Y, size.X, 3)
	}
	imageSize := 3 * size.X * size.Y
	flat := t.Flat()
	for ii, img := range images {
		if !img.Bounds().Size().Eq(size) {
			exceptions.Panicf("image[%d] has size %s, but image[0] has size %s -- they must all be the same",
				ii, img.Bounds().Size(), size)
		}
		tt.fill(flat[ii*imageSize:(ii+1)*imageSize], img)
	}
	return t
}

// fill writes one image into flat, which must have exactly 3*width*height elements.
func (tt *ToTensorConfig) fill(flat []float32, img image.Image) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	planeSize := width * height
	scale := float32(tt.maxValue / float64(0xFFFF))
	pos := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// Alpha is dropped, not multiplied in: semi-transparent pixels keep their color.
			px := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			for c, v := range [3]uint16{px.R, px.G, px.B} {
				value := (float32(v)*scale - tt.mean[c]) / tt.std[c]
				if tt.channels == ChannelsFirst {
					flat[c*planeSize+pos] = value
				} else {
					flat[pos*3+c] = value
				}
			}
			pos++
		}
	}
}

// ToImage converts a tensor produced by ToTensor back to an image, undoing the normalization of tt.
// Values are clamped to the valid color range. It is mostly used to inspect augmented samples.
//
// It panics if the tensor is not rank-3 with 3 channels in the configured axis.
func (tt *ToTensorConfig) ToImage(t *tensors.Tensor) *image.NRGBA {
	dims := t.Shape()
	if len(dims) != 3 {
		exceptions.Panicf("images.ToImage requires a rank-3 tensor, got shape %v", dims)
	}
	var height, width int
	if tt.channels == ChannelsFirst {
		if dims[0] != 3 {
			exceptions.Panicf("images.ToImage with ChannelsFirst requires 3 channels in axis 0, got shape %v", dims)
		}
		height, width = dims[1], dims[2]
	} else {
		if dims[2] != 3 {
			exceptions.Panicf("images.ToImage with ChannelsLast requires 3 channels in axis 2, got shape %v", dims)
		}
		height, width = dims[0], dims[1]
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	flat := t.Flat()
	planeSize := width * height
	for y := range height {
		for x := range width {
			pos := y*width + x
			var rgb [3]uint8
			for c := range 3 {
				var value float32
				if tt.channels == ChannelsFirst {
					value = flat[c*planeSize+pos]
				} else {
					value = flat[pos*3+c]
				}
				value = (value*tt.std[c] + tt.mean[c]) / float32(tt.maxValue)
				rgb[c] = uint8(math.Round(math.Max(0, math.Min(1, float64(value))) * 255))
			}
			img.SetNRGBA(x, y, color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xFF})
		}
	}
	klog.V(2).Infof("converted tensor %v back to a %dx%d image", dims, width, height)
	return img
}
