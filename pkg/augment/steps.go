// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package augment

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/lucasb-eyer/go-colorful"
)

// stepFunc implements Step with a function.
type stepFunc struct {
	name string
	fn   func(img *image.NRGBA, rng *rand.Rand) *image.NRGBA
}

func (s *stepFunc) Name() string { return s.name }

func (s *stepFunc) Transform(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
	return s.fn(img, rng)
}

// randomStep applies the wrapped step with probability p.
type randomStep struct {
	p    float64
	step Step
}

// WithProbability wraps step so it is applied with probability p, sampled independently on each call.
func WithProbability(p float64, step Step) Step {
	if p < 0 || p > 1 {
		exceptions.Panicf("augment.WithProbability(%g, %s): probability must be in [0, 1]", p, step.Name())
	}
	return &randomStep{p: p, step: step}
}

func (s *randomStep) Name() string { return fmt.Sprintf("%s(p=%g)", s.step.Name(), s.p) }

func (s *randomStep) Transform(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
	if rng.Float64() >= s.p {
		return img
	}
	return s.step.Transform(img, rng)
}

// uniform returns a value in [low, high).
func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

// intBetween returns a value in [low, high], inclusive.
func intBetween(rng *rand.Rand, low, high int) int {
	return low + rng.IntN(high-low+1)
}

func clampUint8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}

// Resize to a size x size square, with linear interpolation. It doesn't preserve the aspect ratio.
func Resize(size int) Step {
	return &stepFunc{
		name: fmt.Sprintf("Resize(%d)", size),
		fn: func(img *image.NRGBA, _ *rand.Rand) *image.NRGBA {
			if b := img.Bounds(); b.Dx() == size && b.Dy() == size {
				return img
			}
			return imaging.Resize(img, size, size, imaging.Linear)
		},
	}
}

// HorizontalFlip mirrors the image left to right.
func HorizontalFlip() Step {
	return &stepFunc{
		name: "HorizontalFlip",
		fn: func(img *image.NRGBA, _ *rand.Rand) *image.NRGBA {
			return imaging.FlipH(img)
		},
	}
}

// RandomRotate90 rotates the image counter-clockwise by k*90 degrees, with k uniformly sampled from {0, 1, 2, 3}.
func RandomRotate90() Step {
	return &stepFunc{
		name: "RandomRotate90",
		fn: func(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
			switch rng.IntN(4) {
			case 1:
				return imaging.Rotate90(img)
			case 2:
				return imaging.Rotate180(img)
			case 3:
				return imaging.Rotate270(img)
			}
			return img
		},
	}
}

// BrightnessContrast scales every channel by a contrast factor sampled from [1-contrastLimit, 1+contrastLimit]
// and adds a brightness offset sampled from [-brightnessLimit, brightnessLimit] of the maximum value (255).
func BrightnessContrast(brightnessLimit, contrastLimit float64) Step {
	return &stepFunc{
		name: fmt.Sprintf("BrightnessContrast(brightness=±%g, contrast=±%g)", brightnessLimit, contrastLimit),
		fn: func(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
			alpha := 1 + uniform(rng, -contrastLimit, contrastLimit)
			beta := uniform(rng, -brightnessLimit, brightnessLimit) * 255
			return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
				return color.NRGBA{
					R: clampUint8(float64(c.R)*alpha + beta),
					G: clampUint8(float64(c.G)*alpha + beta),
					B: clampUint8(float64(c.B)*alpha + beta),
					A: c.A,
				}
			})
		},
	}
}

// HueSaturationValue shifts hue, saturation and value by amounts sampled uniformly from [-limit, limit].
//
// Hue is measured in half-degrees (so 180 is a full turn, as in OpenCV), saturation and value in [0, 255].
// The hue shift wraps around, saturation and value are clamped.
func HueSaturationValue(hueLimit, satLimit, valLimit float64) Step {
	return &stepFunc{
		name: fmt.Sprintf("HueSaturationValue(hue=±%g, sat=±%g, val=±%g)", hueLimit, satLimit, valLimit),
		fn: func(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
			hueShift := uniform(rng, -hueLimit, hueLimit) * 2 // In degrees.
			satShift := uniform(rng, -satLimit, satLimit) / 255
			valShift := uniform(rng, -valLimit, valLimit) / 255
			return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
				h, s, v := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hsv()
				h = math.Mod(h+hueShift+360, 360)
				s = math.Max(0, math.Min(1, s+satShift))
				v = math.Max(0, math.Min(1, v+valShift))
				r, g, b := colorful.Hsv(h, s, v).Clamped().RGB255()
				return color.NRGBA{R: r, G: g, B: b, A: c.A}
			})
		},
	}
}

// RandomResizedCrop crops a random region and resizes it to size x size.
//
// The region covers a fraction of the image area sampled from [minScale, maxScale], with an aspect ratio
// (width/height) log-uniformly sampled from [minRatio, maxRatio]. If no valid region is found in 10 attempts,
// it falls back to a center crop with the aspect ratio clamped to the range.
func RandomResizedCrop(size int, minScale, maxScale, minRatio, maxRatio float64) Step {
	return &stepFunc{
		name: fmt.Sprintf("RandomResizedCrop(%d, scale=[%g, %g], ratio=[%g, %g])", size, minScale, maxScale, minRatio, maxRatio),
		fn: func(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
			rect := randomCropRect(img.Bounds(), rng, minScale, maxScale, minRatio, maxRatio)
			return imaging.Resize(imaging.Crop(img, rect), size, size, imaging.Linear)
		},
	}
}

const maxCropAttempts = 10

func randomCropRect(bounds image.Rectangle, rng *rand.Rand, minScale, maxScale, minRatio, maxRatio float64) image.Rectangle {
	width, height := bounds.Dx(), bounds.Dy()
	area := float64(width * height)
	logMinRatio, logMaxRatio := math.Log(minRatio), math.Log(maxRatio)
	for range maxCropAttempts {
		targetArea := area * uniform(rng, minScale, maxScale)
		ratio := math.Exp(uniform(rng, logMinRatio, logMaxRatio))
		w := int(math.Round(math.Sqrt(targetArea * ratio)))
		h := int(math.Round(math.Sqrt(targetArea / ratio)))
		if w > 0 && h > 0 && w <= width && h <= height {
			x0 := bounds.Min.X + rng.IntN(width-w+1)
			y0 := bounds.Min.Y + rng.IntN(height-h+1)
			return image.Rect(x0, y0, x0+w, y0+h)
		}
	}

	// Center crop.
	w, h := width, height
	inRatio := float64(width) / float64(height)
	if inRatio < minRatio {
		h = int(math.Round(float64(w) / minRatio))
	} else if inRatio > maxRatio {
		w = int(math.Round(float64(h) * maxRatio))
	}
	x0 := bounds.Min.X + (width-w)/2
	y0 := bounds.Min.Y + (height-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// CoarseDropout fills between minHoles and maxHoles rectangles with black. Each hole has height and width
// sampled independently from [minSize, maxSize] pixels (clamped to the image) and a uniformly random position.
func CoarseDropout(minHoles, maxHoles, minSize, maxSize int) Step {
	if minHoles < 0 || maxHoles < minHoles || minSize <= 0 || maxSize < minSize {
		exceptions.Panicf("augment.CoarseDropout(holes=[%d, %d], size=[%d, %d]): invalid ranges",
			minHoles, maxHoles, minSize, maxSize)
	}
	return &stepFunc{
		name: fmt.Sprintf("CoarseDropout(holes=[%d, %d], size=[%d, %d])", minHoles, maxHoles, minSize, maxSize),
		fn: func(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
			bounds := img.Bounds()
			width, height := bounds.Dx(), bounds.Dy()
			numHoles := intBetween(rng, minHoles, maxHoles)
			for range numHoles {
				h := min(intBetween(rng, minSize, maxSize), height)
				w := min(intBetween(rng, minSize, maxSize), width)
				pos := image.Pt(bounds.Min.X+rng.IntN(width-w+1), bounds.Min.Y+rng.IntN(height-h+1))
				img = imaging.Paste(img, imaging.New(w, h, color.NRGBA{A: 0xFF}), pos)
			}
			return img
		},
	}
}
