// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/leaflens/leaflens/pkg/augment"
	"github.com/leaflens/leaflens/pkg/dataset/classes"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImageSize = 16

// testRecords are written by createDataset: 4 classes, with "Corn_rust" only in the train split.
var testRecords = []metadata.Record{
	{ImagePath: "Apple_healthy/a1.png", ClassName: "Apple_healthy", Split: metadata.Train},
	{ImagePath: "Apple_healthy/a2.png", ClassName: "Apple_healthy", Split: metadata.Validation},
	{ImagePath: "Corn_rust/c1.png", ClassName: "Corn_rust", Split: metadata.Train},
	{ImagePath: "Corn_rust/c2.png", ClassName: "Corn_rust", Split: metadata.Train},
	{ImagePath: "Spider_mites/s1.png", ClassName: "Spider_mites", Split: metadata.Test},
	{ImagePath: "Spider_mites/s2.png", ClassName: "Spider_mites", Split: metadata.Train},
	{ImagePath: "Hail_damage/h1.png", ClassName: "Hail_damage", Split: metadata.Validation},
	{ImagePath: "Hail_damage/h2.png", ClassName: "Hail_damage", Split: metadata.Test},
}

func writePNG(t *testing.T, filePath string, width, height int, seed int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x*7 + seed), G: uint8(y*11 + seed), B: uint8(seed * 13), A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
	f := must.M1(os.Create(filePath))
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// createDataset writes testRecords images and metadata.csv in a temporary directory.
func createDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for ii, record := range testRecords {
		writePNG(t, filepath.Join(root, filepath.FromSlash(record.ImagePath)), 20+ii, 24, ii)
	}
	require.NoError(t, metadata.WriteCSVFile(filepath.Join(root, metadata.MetadataFileName), testRecords))
	return root
}

func TestNew(t *testing.T) {
	root := createDataset(t)
	ds := must.M1(New(root, metadata.Train, Generic{}))
	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, metadata.Train, ds.Split())
	assert.Equal(t, root, ds.Root())
	assert.Len(t, ds.Records(), len(testRecords))
	assert.Equal(t, []string{"Apple_healthy", "Corn_rust", "Hail_damage", "Spider_mites"}, ds.Registry().Classes)
	assert.Nil(t, ds.Registry().Categories)
	assert.True(t, ds.Transform().IsStochastic())
	assert.Equal(t, map[string]int{"Apple_healthy": 1, "Corn_rust": 2, "Spider_mites": 1}, ds.ClassDistribution())

	// Split view preserves the metadata order.
	var paths []string
	for _, r := range ds.SplitRecords() {
		paths = append(paths, r.ImagePath)
	}
	assert.Equal(t, []string{"Apple_healthy/a1.png", "Corn_rust/c1.png", "Corn_rust/c2.png", "Spider_mites/s2.png"}, paths)

	// Default variant derives categories.
	pv := must.M1(New(root, metadata.Test, nil))
	assert.Equal(t, "plantvillage", pv.Variant().Name())
	assert.Equal(t, []string{"Corn_rust"}, pv.Registry().Categories[classes.Disease])
	assert.False(t, pv.Transform().IsStochastic())

	_, err := New(filepath.Join(root, "missing"), metadata.Train, Generic{})
	require.ErrorIs(t, err, metadata.ErrMissingRoot)
}

func TestGetOneHot(t *testing.T) {
	root := createDataset(t)
	train := must.M1(New(root, metadata.Train, Generic{})).WithImageSize(testImageSize)
	for _, ds := range []*Dataset{train, train.WithSplit(metadata.Validation), train.WithSplit(metadata.Test)} {
		require.Equal(t, train.Registry(), ds.Registry())
		for ii := range ds.Len() {
			sample := must.M1(ds.Get(ii))
			assert.Equal(t, ii, sample.Index)
			assert.Equal(t, []int{3, testImageSize, testImageSize}, sample.Image.Shape())
			require.Len(t, sample.Label, ds.NumClasses())
			numOnes := 0
			for idx, v := range sample.Label {
				switch v {
				case 1:
					numOnes++
					assert.Equal(t, sample.Record.ClassName, ds.Registry().Name(idx))
				case 0:
				default:
					t.Errorf("label %v has value %g", sample.Label, v)
				}
			}
			assert.Equal(t, 1, numOnes, "sample %d of split %s", ii, ds.Split())
		}
	}
}

func TestGetOutOfRange(t *testing.T) {
	ds := must.M1(New(createDataset(t), metadata.Validation, Generic{}))
	require.Panics(t, func() { _, _ = ds.Get(ds.Len()) })
	require.Panics(t, func() { _, _ = ds.Get(-1) })
}

func TestGetDeterministic(t *testing.T) {
	ds := must.M1(New(createDataset(t), metadata.Train, Generic{})).WithImageSize(testImageSize).WithSeed(7)
	want := make([][]float32, ds.Len())
	for ii := range ds.Len() {
		want[ii] = must.M1(ds.Get(ii)).Image.Flat()
	}

	// Concurrent calls, in any order, see the same augmentations.
	var wg sync.WaitGroup
	got := make([][]float32, ds.Len())
	for ii := ds.Len() - 1; ii >= 0; ii-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[ii] = must.M1(ds.Get(ii)).Image.Flat()
		}()
	}
	wg.Wait()
	assert.Equal(t, want, got)

	// Same epoch reproduces the stream.
	epoch3 := ds.ForEpoch(3)
	assert.Equal(t, must.M1(epoch3.Get(1)).Image.Flat(), must.M1(ds.ForEpoch(3).Get(1)).Image.Flat())
}

func TestWithTransform(t *testing.T) {
	ds := must.M1(New(createDataset(t), metadata.Train, Generic{}))
	ds.WithTransform(augment.New(augment.Resize(8), augment.HorizontalFlip()))
	sample := must.M1(ds.Get(0))
	assert.Equal(t, []int{3, 8, 8}, sample.Image.Shape())

	// Custom transforms are kept across splits and image size changes.
	val := ds.WithSplit(metadata.Validation).WithImageSize(32)
	assert.Equal(t, []int{3, 8, 8}, must.M1(val.Get(0)).Image.Shape())
}

func TestCorruptImage(t *testing.T) {
	root := createDataset(t)
	corrupt := filepath.Join(root, "Hail_damage", "h1.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a png"), 0o644))

	ds := must.M1(New(root, metadata.Validation, Generic{}))
	_, err := ds.Get(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "h1.png")
	_ = must.M1(ds.Get(0))

	invalid, err := ds.Validate(context.Background(), 2, false)
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, "Hail_damage/h1.png", invalid[0].Record.ImagePath)
	assert.FileExists(t, corrupt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ds.Validate(ctx, 2, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassInfoCache(t *testing.T) {
	root := createDataset(t)
	ds := must.M1(New(root, metadata.Train, PlantVillage{}))
	require.NoError(t, ds.SaveClassInfo())

	// The cache is used even by variants that wouldn't derive categories.
	cached := must.M1(New(root, metadata.Train, Generic{}))
	assert.Equal(t, ds.Registry(), cached.Registry())

	// A cache that doesn't cover the records is rejected.
	require.NoError(t, classes.FromClasses([]string{"Apple_healthy"}).SaveInfo(filepath.Join(root, classes.InfoFileName)))
	_, err := New(root, metadata.Train, Generic{})
	require.Error(t, err)
}

func TestIP102Variant(t *testing.T) {
	root := createDataset(t)
	ann := `{"1": {"image_path": "Corn_rust/c1.png", "class_name": "Corn_rust", "split": "test", "bbox": [0, 0, 5, 5]}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, metadata.AnnotationsFileName), []byte(ann), 0o644))
	ds := must.M1(New(root, metadata.Test, IP102{}))
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, &metadata.BBox{0, 0, 5, 5}, ds.SplitRecords()[0].BBox)
	assert.Equal(t, 1, ds.NumClasses())
}

func TestVariantByName(t *testing.T) {
	assert.Equal(t, "plantvillage", VariantByName("").Name())
	assert.Equal(t, "plantvillage", VariantByName("PlantVillage").Name())
	assert.Equal(t, "ip102", VariantByName("ip102").Name())
	assert.Equal(t, "generic", VariantByName("generic").Name())
	assert.Equal(t, "generic", VariantByName("my_farm").Name())
}
