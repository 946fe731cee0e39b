// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package metadata resolves the per-image records of a plant health dataset: where each image
// is (relative to the dataset root), which class it belongs to and which split
// (train, validation or test) it was assigned to.
//
// Records are read from a `metadata.csv` file when the dataset ships one, from an IP102-style
// `annotations.json` for annotated datasets, or synthesized from a directory-per-class layout.
package metadata

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leaflens/leaflens/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// File names looked up at the root of a dataset.
const (
	MetadataFileName    = "metadata.csv"
	AnnotationsFileName = "annotations.json"
)

// ErrMissingRoot is returned (wrapped) when the dataset root doesn't exist or is not a directory.
// It is a configuration error, and there is no point in retrying.
var ErrMissingRoot = errors.New("dataset root not found")

// Split of the dataset a record belongs to.
type Split int8

const (
	Train Split = iota
	Validation
	Test
)

// AllSplits in canonical order.
var AllSplits = []Split{Train, Validation, Test}

// String returns the name used in metadata files: "train", "val" or "test".
func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Validation:
		return "val"
	case Test:
		return "test"
	}
	return "Split(" + strconv.Itoa(int(s)) + ")"
}

// ParseSplit converts the name of a split back to a Split. It accepts "validation" as an alias of "val".
func ParseSplit(name string) (Split, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "train":
		return Train, nil
	case "val", "validation":
		return Validation, nil
	case "test":
		return Test, nil
	}
	return Train, errors.Errorf("unknown split %q, valid values are \"train\", \"val\" and \"test\"", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Split) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Split) UnmarshalText(text []byte) error {
	parsed, err := ParseSplit(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// BBox is an optional bounding box annotation, as given by the dataset (usually x1, y1, x2, y2).
type BBox [4]float64

// String formats the box the way it is stored in metadata files: `[x1, y1, x2, y2]`.
func (b BBox) String() string {
	parts := make([]string, len(b))
	for ii, v := range b {
		parts[ii] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseBBox parses a bounding box written as 4 numbers, optionally enclosed in brackets and separated
// by commas, semicolons or spaces. Empty values (including "NaN" and "None") return nil.
func ParseBBox(value string) (*BBox, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "", "NaN", "nan", "None", "null", "[]":
		return nil, nil
	}
	value = strings.Trim(value, "[]()")
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) != 4 {
		return nil, errors.Errorf("bounding box %q must have 4 values, got %d", value, len(fields))
	}
	var bbox BBox
	for ii, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid bounding box value %q", field)
		}
		bbox[ii] = v
	}
	return &bbox, nil
}

// Record describes one labeled image. Records are immutable once resolved.
type Record struct {
	// ImagePath relative to the dataset root, using "/" as separator.
	ImagePath string

	// ClassName is the label of the image, never empty.
	ClassName string

	Split Split

	// BBox is only set by annotated datasets.
	BBox *BBox
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ImagePath) == "" {
		return errors.New("empty image_path")
	}
	if strings.TrimSpace(r.ClassName) == "" {
		return errors.Errorf("empty class_name for image %q", r.ImagePath)
	}
	if r.Split < Train || r.Split > Test {
		return errors.Errorf("invalid split %s for image %q", r.Split, r.ImagePath)
	}
	return nil
}

// FilterSplit returns the records of the given split, preserving their relative order.
// The position in the returned slice is the dense index used by datasets.
func FilterSplit(records []Record, split Split) []Record {
	view := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Split == split {
			view = append(view, r)
		}
	}
	return view
}

// CountBySplit returns the number of records in each split.
func CountBySplit(records []Record) map[Split]int {
	counts := make(map[Split]int, len(AllSplits))
	for _, r := range records {
		counts[r.Split]++
	}
	return counts
}

// checkRoot returns a wrapped ErrMissingRoot if root is not an existing directory.
func checkRoot(root string) error {
	isDir, err := fsutil.IsDir(root)
	if err != nil {
		return err
	}
	if !isDir {
		return errors.Wrapf(ErrMissingRoot, "dataset root %q", root)
	}
	return nil
}

// Resolve returns the records of the dataset at root.
//
// If `root/metadata.csv` exists it is parsed (see ReadCSV), otherwise the records are synthesized from
// the directory structure (see Synthesize).
func Resolve(root string) ([]Record, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	csvPath := filepath.Join(root, MetadataFileName)
	found, err := fsutil.FileExists(csvPath)
	if err != nil {
		return nil, err
	}
	if found {
		return ReadCSVFile(csvPath)
	}
	return Synthesize(root)
}
