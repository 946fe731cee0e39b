// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"bytes"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/leaflens/leaflens/pkg/support/csvutil"
	"github.com/leaflens/leaflens/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Column names of metadata.csv.
const (
	ImagePathCol = "image_path"
	ClassNameCol = "class_name"
	SplitCol     = "split"
	BBoxCol      = "bbox"
)

// RequiredColumns that metadata.csv must have. Any other column, other than BBoxCol, is ignored.
var RequiredColumns = []string{ImagePathCol, ClassNameCol, SplitCol}

// ReadCSVFile opens and parses a metadata.csv file. See ReadCSV.
func ReadCSVFile(filePath string) ([]Record, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open metadata file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	records, err := ReadCSV(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", filePath)
	}
	klog.V(1).Infof("read %d records from %q", len(records), filePath)
	return records, nil
}

// ReadCSV parses metadata in CSV format: a header with at least the columns `image_path`, `class_name` and
// `split` (in any order), and optionally `bbox`. All values are read as strings.
//
// Errors point to the 1-based data row (not counting the header) that failed.
func ReadCSV(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata CSV")
	}
	header, headerOnly, err := csvutil.HeaderOnly(data)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to parse metadata CSV")
	}
	if headerOnly {
		// An empty dataset, as written by WriteCSV with no records.
		if _, err := checkColumns(header); err != nil {
			return nil, err
		}
		return []Record{}, nil
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "failed to parse metadata CSV")
	}
	columns, err := checkColumns(df.Names())
	if err != nil {
		return nil, err
	}

	paths := df.Col(ImagePathCol).Records()
	classNames := df.Col(ClassNameCol).Records()
	splits := df.Col(SplitCol).Records()
	var bboxes []string
	if columns.Has(BBoxCol) {
		bboxes = df.Col(BBoxCol).Records()
	}

	records := make([]Record, 0, df.Nrow())
	for row := range df.Nrow() {
		split, err := ParseSplit(splits[row])
		if err != nil {
			return nil, errors.WithMessagef(err, "metadata row %d", row+1)
		}
		record := Record{
			ImagePath: paths[row],
			ClassName: classNames[row],
			Split:     split,
		}
		if bboxes != nil {
			record.BBox, err = ParseBBox(bboxes[row])
			if err != nil {
				return nil, errors.WithMessagef(err, "metadata row %d", row+1)
			}
		}
		if record.ImagePath == "NaN" || record.ClassName == "NaN" {
			return nil, errors.Errorf("metadata row %d has missing values", row+1)
		}
		if err = record.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "metadata row %d", row+1)
		}
		records = append(records, record)
	}
	return records, nil
}

// WriteCSV writes records in the format read by ReadCSV. The `bbox` column is only included if at least
// one record has a bounding box.
func WriteCSV(w io.Writer, records []Record) error {
	paths := make([]string, len(records))
	classNames := make([]string, len(records))
	splits := make([]string, len(records))
	bboxes := make([]string, len(records))
	hasBBox := false
	for ii, r := range records {
		paths[ii] = r.ImagePath
		classNames[ii] = r.ClassName
		splits[ii] = r.Split.String()
		if r.BBox != nil {
			bboxes[ii] = r.BBox.String()
			hasBBox = true
		}
	}
	cols := []series.Series{
		series.New(paths, series.String, ImagePathCol),
		series.New(classNames, series.String, ClassNameCol),
		series.New(splits, series.String, SplitCol),
	}
	if hasBBox {
		cols = append(cols, series.New(bboxes, series.String, BBoxCol))
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build metadata table")
	}
	return errors.Wrap(df.WriteCSV(w), "failed to write metadata CSV")
}

// WriteCSVFile writes the records to filePath, usually `<root>/metadata.csv`, so a synthesized split can be
// frozen.
func WriteCSVFile(filePath string, records []Record) (err error) {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create metadata file %q", filePath)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close metadata file %q", filePath)
		}
	}()
	return WriteCSV(f, records)
}

// checkColumns returns the set of column names, or an error if one of the RequiredColumns is missing.
func checkColumns(names []string) (sets.Set[string], error) {
	columns := sets.MakeWith(names...)
	for _, col := range RequiredColumns {
		if !columns.Has(col) {
			return nil, errors.Errorf("metadata CSV is missing required column %q (columns found: %q)", col, names)
		}
	}
	return columns, nil
}
