// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLayout creates root/<class>/<file> for each entry of files, with dummy contents: synthesis
// never decodes images.
func writeLayout(t *testing.T, root string, files map[string][]string) {
	t.Helper()
	for className, names := range files {
		dir := filepath.Join(root, className)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, name := range names {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
		}
	}
}

func TestParseSplit(t *testing.T) {
	for name, want := range map[string]Split{"train": Train, "val": Validation, "validation": Validation, " Test ": Test} {
		got, err := ParseSplit(name)
		require.NoError(t, err, "split %q", name)
		assert.Equal(t, want, got)
	}
	_, err := ParseSplit("holdout")
	require.Error(t, err)
	assert.Equal(t, "val", Validation.String())
}

func TestAssignSplitDeterminism(t *testing.T) {
	root := t.TempDir()
	writeLayout(t, root, map[string][]string{
		"Tomato_healthy":     {"a.jpg", "b.jpg", "c.JPG", "d.png"},
		"Tomato_late_blight": {"e.jpg", "f.jpeg", "g.jpg"},
	})
	first := must.M1(Synthesize(root))
	second := must.M1(Synthesize(root))
	require.Len(t, first, 7)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("synthesis is not deterministic (-first +second):\n%s", diff)
	}
	for _, r := range first {
		assert.Equal(t, AssignSplit(filepath.Base(r.ImagePath)), r.Split)
	}
}

func TestAssignSplitProportions(t *testing.T) {
	const numFiles = 20000
	counts := make(map[Split]int)
	for ii := range numFiles {
		counts[AssignSplit(fmt.Sprintf("IMG_%05d.jpg", ii))]++
	}
	assert.InDelta(t, 0.70, float64(counts[Train])/numFiles, 0.02)
	assert.InDelta(t, 0.15, float64(counts[Validation])/numFiles, 0.02)
	assert.InDelta(t, 0.15, float64(counts[Test])/numFiles, 0.02)
}

func TestAssignSplitBuckets(t *testing.T) {
	for ii := range 1000 {
		name := fmt.Sprintf("leaf_%d.jpg", ii)
		bucket := SplitBucket(name)
		require.True(t, bucket >= 0 && bucket < NumSplitBuckets)
		switch split := AssignSplit(name); {
		case bucket < 70:
			assert.Equal(t, Train, split)
		case bucket < 85:
			assert.Equal(t, Validation, split)
		default:
			assert.Equal(t, Test, split)
		}
	}
}

func TestSynthesize(t *testing.T) {
	root := t.TempDir()
	writeLayout(t, root, map[string][]string{
		"Corn_rust":  {"2.jpg", "1.jpg", "notes.txt", ".hidden.jpg"},
		".cache":     {"x.jpg"},
		"Apple_scab": {"z.png"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("readme"), 0o644))

	records := must.M1(Synthesize(root))
	var paths, classNames []string
	for _, r := range records {
		paths = append(paths, r.ImagePath)
		classNames = append(classNames, r.ClassName)
		assert.Nil(t, r.BBox)
	}
	assert.Equal(t, []string{"Apple_scab/z.png", "Corn_rust/1.jpg", "Corn_rust/2.jpg"}, paths)
	assert.Equal(t, []string{"Apple_scab", "Corn_rust", "Corn_rust"}, classNames)
}

func TestSynthesizeEmptyAndMissing(t *testing.T) {
	records, err := Synthesize(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = Resolve(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRoot))
}

func TestCSVRoundTrip(t *testing.T) {
	records := []Record{
		{ImagePath: "Tomato_healthy/a.jpg", ClassName: "Tomato_healthy", Split: Train},
		{ImagePath: "Aphids/b.jpg", ClassName: "Aphids", Split: Test, BBox: &BBox{1, 2.5, 30, 40}},
		{ImagePath: "Corn_rust/c.jpg", ClassName: "Corn_rust", Split: Validation},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	assert.True(t, strings.HasPrefix(buf.String(), "image_path,class_name,split,bbox\n"))

	got := must.M1(ReadCSV(&buf))
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVRoundTripEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "image_path,class_name,split\n", buf.String())
	records := must.M1(ReadCSV(&buf))
	assert.NotNil(t, records)
	assert.Empty(t, records)

	// A frozen empty split resolves again to an empty dataset.
	root := t.TempDir()
	require.NoError(t, WriteCSVFile(filepath.Join(root, MetadataFileName), must.M1(Resolve(root))))
	records = must.M1(Resolve(root))
	assert.Empty(t, records)

	// Required columns are still checked without data rows.
	_, err := ReadCSV(strings.NewReader("image_path,split\n"))
	require.ErrorContains(t, err, "class_name")
}

func TestReadCSV(t *testing.T) {
	// Column order is free and extra columns are ignored.
	input := "split,source,class_name,image_path\n" +
		"train,field,Potato_early_blight,p/1.jpg\n" +
		"val,lab,Potato_healthy,p/2.jpg\n"
	records := must.M1(ReadCSV(strings.NewReader(input)))
	require.Len(t, records, 2)
	assert.Equal(t, Record{ImagePath: "p/1.jpg", ClassName: "Potato_early_blight", Split: Train}, records[0])
	assert.Equal(t, Validation, records[1].Split)

	_, err := ReadCSV(strings.NewReader("image_path,split\na.jpg,train\n"))
	require.ErrorContains(t, err, "class_name")

	_, err = ReadCSV(strings.NewReader("image_path,class_name,split\na.jpg,Rust,holdout\n"))
	require.ErrorContains(t, err, "row 1")

	_, err = ReadCSV(strings.NewReader("image_path,class_name,split,bbox\na.jpg,Rust,train,[1 2 3]\n"))
	require.ErrorContains(t, err, "4 values")
}

func TestResolvePrefersMetadataFile(t *testing.T) {
	root := t.TempDir()
	writeLayout(t, root, map[string][]string{"Ignored": {"x.jpg"}})
	csv := "image_path,class_name,split\nleaves/1.jpg,Grape_black_rot,test\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, MetadataFileName), []byte(csv), 0o644))

	records := must.M1(Resolve(root))
	require.Len(t, records, 1)
	assert.Equal(t, "Grape_black_rot", records[0].ClassName)
	assert.Equal(t, Test, records[0].Split)
}

func TestReadAnnotations(t *testing.T) {
	input := `{
		"ip_0003": {"image_path": "images/3.jpg", "class_name": "rice leaf roller", "split": "train", "bbox": [1, 2, 3, 4]},
		"ip_0001": {"image_path": "images/1.jpg", "class_name": "aphids", "split": "test", "bbox": null},
		"ip_0002": {"image_path": "images/2.jpg", "class_name": "mole cricket", "split": "val"}
	}`
	records := must.M1(ReadAnnotations(strings.NewReader(input)))
	require.Len(t, records, 3)
	// File order is preserved, not the identifier order.
	assert.Equal(t, "images/3.jpg", records[0].ImagePath)
	assert.Equal(t, &BBox{1, 2, 3, 4}, records[0].BBox)
	assert.Nil(t, records[1].BBox)
	assert.Equal(t, Validation, records[2].Split)

	_, err := ReadAnnotations(strings.NewReader(`[]`))
	require.Error(t, err)
	_, err = ReadAnnotations(strings.NewReader(`{"x": {"image_path": "a.jpg", "class_name": "", "split": "train"}}`))
	require.Error(t, err)
}

func TestResolveAnnotationsFallback(t *testing.T) {
	root := t.TempDir()
	writeLayout(t, root, map[string][]string{"aphids": {"1.jpg"}})
	records := must.M1(ResolveAnnotations(root))
	require.Len(t, records, 1)
	assert.Equal(t, "aphids/1.jpg", records[0].ImagePath)

	ann := `{"1": {"image_path": "imgs/1.jpg", "class_name": "thrips", "split": "val"}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, AnnotationsFileName), []byte(ann), 0o644))
	records = must.M1(ResolveAnnotations(root))
	require.Len(t, records, 1)
	assert.Equal(t, "thrips", records[0].ClassName)
}

func TestFilterSplit(t *testing.T) {
	records := []Record{
		{ImagePath: "a", ClassName: "x", Split: Train},
		{ImagePath: "b", ClassName: "x", Split: Test},
		{ImagePath: "c", ClassName: "y", Split: Train},
	}
	view := FilterSplit(records, Train)
	require.Len(t, view, 2)
	assert.Equal(t, "a", view[0].ImagePath)
	assert.Equal(t, "c", view[1].ImagePath)
	assert.Empty(t, FilterSplit(records, Validation))
	assert.Equal(t, map[Split]int{Train: 2, Test: 1}, CountBySplit(records))
}
