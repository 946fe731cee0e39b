// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset provides labeled plant images by index, for one split of a dataset.
//
// A Dataset resolves the metadata of all splits once (see package metadata), derives the class vocabulary from
// all of them (see package classes), and serves the samples of the requested split: each call to Get reads and
// decodes the image, applies the split's augmentation pipeline (see package augment) and builds the one-hot label.
//
// Get holds no mutable state, so it can be called concurrently, e.g. by a loader.Loader.
package dataset

import (
	"image"
	"math/rand/v2"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/leaflens/leaflens/pkg/augment"
	"github.com/leaflens/leaflens/pkg/core/tensors"
	"github.com/leaflens/leaflens/pkg/dataset/classes"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultSeed for the augmentation random streams.
const DefaultSeed = 42

// Sample is one transformed image with its label.
type Sample struct {
	// Index of the sample in the split.
	Index int

	Record metadata.Record

	// Image shaped `[3, image_size, image_size]`.
	Image *tensors.Tensor

	// Label is the one-hot encoding of the class, with Registry().NumClasses values.
	Label []float32
}

// Dataset serves the samples of one split. See New.
type Dataset struct {
	root     string
	variant  Variant
	split    metadata.Split
	records  []metadata.Record // All splits.
	view     []metadata.Record // Records of split, in the same relative order.
	registry *classes.Registry

	imageSize       int
	transform       *augment.Pipeline
	customTransform bool
	seed, epoch     uint64
}

// New resolves the dataset at root with the given variant (DefaultVariant if nil), and returns a Dataset
// serving the given split.
//
// If `root/class_info.json` exists, the class registry is loaded from it (and it must cover all records),
// otherwise it is derived by the variant. The transform defaults to augment.Build(split, augment.DefaultImageSize).
func New(root string, split metadata.Split, variant Variant) (*Dataset, error) {
	if variant == nil {
		variant = DefaultVariant
	}
	records, err := variant.ResolveMetadata(root)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to resolve %s dataset in %q", variant.Name(), root)
	}
	registry, err := loadOrDeriveClasses(root, variant, records)
	if err != nil {
		return nil, err
	}
	d := &Dataset{
		root:      root,
		variant:   variant,
		records:   records,
		registry:  registry,
		imageSize: augment.DefaultImageSize,
		seed:      DefaultSeed,
	}
	d.setSplit(split)
	if registry.NumClasses == 0 {
		klog.Warningf("dataset in %q has no classes: samples cannot be labeled", root)
	}
	return d, nil
}

func loadOrDeriveClasses(root string, variant Variant, records []metadata.Record) (*classes.Registry, error) {
	infoPath := filepath.Join(root, classes.InfoFileName)
	found, err := fsutil.FileExists(infoPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return variant.DeriveClasses(records), nil
	}
	registry, err := classes.LoadInfo(infoPath)
	if err != nil {
		return nil, err
	}
	if err = registry.Validate(records); err != nil {
		return nil, errors.WithMessagef(err, "class info %q doesn't match the dataset metadata", infoPath)
	}
	klog.V(1).Infof("loaded %d classes from %q", registry.NumClasses, infoPath)
	return registry, nil
}

// setSplit updates the view and, if not custom, the transform.
func (d *Dataset) setSplit(split metadata.Split) {
	d.split = split
	d.view = metadata.FilterSplit(d.records, split)
	if !d.customTransform {
		d.transform = augment.Build(split, d.imageSize)
	}
	klog.Infof("loaded %s samples for %s split (%d classes)", humanize.Comma(int64(len(d.view))), split, d.registry.NumClasses)
}

// WithImageSize sets the image size of the standard transform. It has no effect if a custom transform was set
// with WithTransform.
//
// It must be called before the Dataset is shared. It returns the Dataset, so calls can be cascaded.
func (d *Dataset) WithImageSize(size int) *Dataset {
	d.imageSize = size
	if !d.customTransform {
		d.transform = augment.Build(d.split, size)
	}
	return d
}

// WithTransform replaces the standard transform of the split.
//
// It must be called before the Dataset is shared. It returns the Dataset, so calls can be cascaded.
func (d *Dataset) WithTransform(transform *augment.Pipeline) *Dataset {
	d.transform = transform
	d.customTransform = true
	return d
}

// WithSeed sets the seed of the augmentation random streams.
//
// It must be called before the Dataset is shared. It returns the Dataset, so calls can be cascaded.
func (d *Dataset) WithSeed(seed uint64) *Dataset {
	d.seed = seed
	return d
}

// WithSplit returns a new Dataset serving another split of the same records and class registry, so label
// indices are the same in both.
func (d *Dataset) WithSplit(split metadata.Split) *Dataset {
	other := *d
	other.setSplit(split)
	return &other
}

// ForEpoch returns a copy of the Dataset whose augmentations are drawn from the random stream of the given epoch.
// Without it, every epoch sees the same augmentations.
func (d *Dataset) ForEpoch(epoch int) *Dataset {
	other := *d
	other.epoch = uint64(epoch)
	return &other
}

// Root directory of the dataset.
func (d *Dataset) Root() string { return d.root }

// Variant used to resolve the dataset.
func (d *Dataset) Variant() Variant { return d.variant }

// Split served by the Dataset.
func (d *Dataset) Split() metadata.Split { return d.split }

// Records of all splits. It must not be modified.
func (d *Dataset) Records() []metadata.Record { return d.records }

// SplitRecords are the records of the split, indexed like Get. It must not be modified.
func (d *Dataset) SplitRecords() []metadata.Record { return d.view }

// Registry of classes, shared by all splits.
func (d *Dataset) Registry() *classes.Registry { return d.registry }

// Transform applied to the images.
func (d *Dataset) Transform() *augment.Pipeline { return d.transform }

// Len returns the number of samples in the split.
func (d *Dataset) Len() int { return len(d.view) }

// NumClasses is the length of the labels.
func (d *Dataset) NumClasses() int { return d.registry.NumClasses }

// ImagePath returns the full path of the image of sample index.
func (d *Dataset) ImagePath(index int) string {
	d.checkIndex(index)
	return filepath.Join(d.root, filepath.FromSlash(d.view[index].ImagePath))
}

func (d *Dataset) checkIndex(index int) {
	if index < 0 || index >= len(d.view) {
		exceptions.Panicf("dataset index %d out of range for %s split with %d samples", index, d.split, len(d.view))
	}
}

// rng returns the random stream for one sample. It only depends on the seed, epoch and index, so it is the
// same regardless of the order or concurrency of the calls.
func (d *Dataset) rng(index int) *rand.Rand {
	return rand.New(rand.NewPCG(d.seed, d.epoch<<32^uint64(index)))
}

// Get reads, decodes and transforms the image of the sample at index, and builds its label.
//
// It panics if index is out of range: that is a bug of the caller. Errors reading or decoding the image are
// returned and include the image path. Safe for concurrent use.
func (d *Dataset) Get(index int) (Sample, error) {
	imagePath := d.ImagePath(index)
	record := d.view[index]
	label, err := d.registry.OneHot(record.ClassName)
	if err != nil {
		return Sample{}, errors.WithMessagef(err, "sample %d (%q)", index, imagePath)
	}
	img, err := DecodeImage(imagePath)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Index:  index,
		Record: record,
		Image:  d.transform.Apply(img, d.rng(index)),
		Label:  label,
	}, nil
}

// DecodeImage reads and decodes the image file, applying the EXIF orientation if present.
func DecodeImage(imagePath string) (image.Image, error) {
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %q", imagePath)
	}
	return img, nil
}

// ClassDistribution returns the number of samples per class name in the split.
func (d *Dataset) ClassDistribution() map[string]int {
	counts := make(map[string]int, d.registry.NumClasses)
	for _, record := range d.view {
		counts[record.ClassName]++
	}
	return counts
}

// SaveClassInfo writes the class registry to `root/class_info.json`, so later runs (and training drivers)
// reuse it.
func (d *Dataset) SaveClassInfo() error {
	return d.registry.SaveInfo(filepath.Join(d.root, classes.InfoFileName))
}
