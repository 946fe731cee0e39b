// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package augment builds the image transformation pipelines applied to dataset samples.
//
// The training pipeline resizes the image and then applies a fixed sequence of stochastic augmentations,
// each one independently sampled; evaluation pipelines (validation and test) only resize. All pipelines end by
// normalizing each channel with the ImageNet statistics and converting to a channels-first float32 tensor.
//
// Randomness comes exclusively from the *rand.Rand passed to Pipeline.Apply: pipelines hold no state and can be
// shared by concurrent goroutines.
package augment

import (
	"image"
	"math/rand/v2"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/leaflens/leaflens/pkg/core/tensors"
	"github.com/leaflens/leaflens/pkg/core/tensors/images"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
)

// DefaultImageSize is the side of the square images fed to the model.
const DefaultImageSize = 224

// Step is one image transformation. Steps must not modify the input image, and must only draw randomness from rng.
type Step interface {
	// Name used for inspection, e.g. "HorizontalFlip(p=0.5)".
	Name() string

	// Transform returns the transformed image. rng may be nil for deterministic steps.
	Transform(img *image.NRGBA, rng *rand.Rand) *image.NRGBA
}

// Pipeline is an ordered sequence of Steps followed by normalization and conversion to tensor.
type Pipeline struct {
	steps    []Step
	toTensor *images.ToTensorConfig
}

// New creates a pipeline with the given steps, ending with ImageNet normalization and channels-first layout.
func New(steps ...Step) *Pipeline {
	return &Pipeline{
		steps:    steps,
		toTensor: images.ToTensor().Channels(images.ChannelsFirst).Normalize(images.ImageNetMean, images.ImageNetStd),
	}
}

// Build returns the standard pipeline for the split:
//
//   - Train: Resize, HorizontalFlip (p=0.5), RandomRotate90 (p=0.5), BrightnessContrast (p=0.5, ±20%),
//     HueSaturationValue (p=0.5), RandomResizedCrop (p=0.5, scale 0.8-1.0, ratio 0.8-1.2), CoarseDropout (p=0.3),
//     then Normalize and ToTensor.
//   - Validation and Test: Resize, Normalize and ToTensor.
func Build(split metadata.Split, imageSize int) *Pipeline {
	if imageSize <= 0 {
		exceptions.Panicf("augment.Build(%s, %d): image size must be positive", split, imageSize)
	}
	if split != metadata.Train {
		return New(Resize(imageSize))
	}
	return New(
		Resize(imageSize),
		WithProbability(0.5, HorizontalFlip()),
		WithProbability(0.5, RandomRotate90()),
		WithProbability(0.5, BrightnessContrast(0.2, 0.2)),
		WithProbability(0.5, HueSaturationValue(20, 30, 20)),
		WithProbability(0.5, RandomResizedCrop(imageSize, 0.8, 1.0, 0.8, 1.2)),
		WithProbability(0.3, CoarseDropout(1, 8, 8, 32)),
	)
}

// IsStochastic returns whether any step of the pipeline draws randomness.
func (p *Pipeline) IsStochastic() bool {
	for _, step := range p.steps {
		if _, ok := step.(*randomStep); ok {
			return true
		}
	}
	return false
}

// Steps returns the names of the steps, including the final normalization and tensor conversion.
func (p *Pipeline) Steps() []string {
	names := make([]string, 0, len(p.steps)+2)
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	return append(names, "Normalize(ImageNet)", "ToTensor(ChannelsFirst)")
}

// String implements fmt.Stringer.
func (p *Pipeline) String() string {
	return strings.Join(p.Steps(), " -> ")
}

// Transform applies the image steps only, without normalization: useful to inspect augmentations.
//
// rng can only be nil if the pipeline is not stochastic.
func (p *Pipeline) Transform(img image.Image, rng *rand.Rand) *image.NRGBA {
	if rng == nil && p.IsStochastic() {
		exceptions.Panicf("augment.Pipeline %s requires a random number generator", p)
	}
	current := imaging.Clone(img)
	for _, step := range p.steps {
		current = step.Transform(current, rng)
	}
	return current
}

// Apply the pipeline to img: it returns a float32 tensor shaped `[3, height, width]`, normalized per channel.
//
// rng can only be nil if the pipeline is not stochastic.
func (p *Pipeline) Apply(img image.Image, rng *rand.Rand) *tensors.Tensor {
	return p.toTensor.Single(p.Transform(img, rng))
}

// ToImage converts a tensor produced by Apply back to an image, undoing the normalization.
func (p *Pipeline) ToImage(t *tensors.Tensor) *image.NRGBA {
	return p.toTensor.ToImage(t)
}
