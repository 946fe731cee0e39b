// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package csvutil has small helpers for CSV files, complementing gota's dataframe.
package csvutil

import (
	"bytes"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// HeaderOnly returns the header of data if it holds a header and no data rows.
//
// gota's dataframe.ReadCSV rejects such files with an "empty DataFrame" error, so readers use HeaderOnly to
// handle them first. It returns ok=false if data is empty or has at least one data row.
func HeaderOnly(data []byte) (header []string, ok bool, err error) {
	reader := gocsv.DefaultCSVReader(bytes.NewReader(data))
	header, err = reader.Read()
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to parse CSV header")
	}
	if _, err = reader.Read(); err == io.EOF {
		return header, true, nil
	}
	// Errors in data rows are reported by the full parse.
	return nil, false, nil
}
