// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"bytes"
	"io"
	"math"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/leaflens/leaflens/pkg/support/csvutil"
	"github.com/pkg/errors"
)

// ReadMatrixCSV reads a `[N][C]` matrix of ground truth or predictions: a header with the C class names, and
// one row per sample.
//
// A header with no rows is an empty matrix.
func ReadMatrixCSV(r io.Reader) (names []string, rows [][]float64, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read matrix CSV")
	}
	header, headerOnly, err := csvutil.HeaderOnly(data)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to parse matrix CSV")
	}
	if headerOnly {
		return header, [][]float64{}, nil
	}
	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, nil, errors.Wrap(df.Err, "failed to parse matrix CSV")
	}
	names = df.Names()
	columns := make([][]float64, len(names))
	for col, name := range names {
		columns[col] = df.Col(name).Float()
	}
	rows = make([][]float64, df.Nrow())
	for row := range rows {
		rows[row] = make([]float64, len(names))
		for col := range names {
			v := columns[col][row]
			if math.IsNaN(v) {
				return nil, nil, errors.Errorf("matrix row %d, column %q: missing or invalid value", row+1, names[col])
			}
			rows[row][col] = v
		}
	}
	return names, rows, nil
}

// ReadMatrixCSVFile is like ReadMatrixCSV, but reads from a file.
func ReadMatrixCSVFile(filePath string) (names []string, rows [][]float64, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	names, rows, err = ReadMatrixCSV(f)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "reading %q", filePath)
	}
	return names, rows, nil
}
