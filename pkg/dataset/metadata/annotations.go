// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/leaflens/leaflens/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// annotation is one entry of an IP102-style annotations.json file.
type annotation struct {
	ImagePath string    `json:"image_path"`
	ClassName string    `json:"class_name"`
	Split     string    `json:"split"`
	BBox      []float64 `json:"bbox,omitempty"`
}

// ReadAnnotations parses an IP102-style annotations file: a JSON object mapping an image identifier to
// `{"image_path": ..., "class_name": ..., "split": ..., "bbox": [x1, y1, x2, y2]}`, where "bbox" is optional
// (missing or null).
//
// Records are returned in the order they appear in the file.
func ReadAnnotations(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse annotations")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.Errorf("annotations must be a JSON object keyed by image id, got %v", tok)
	}
	var records []Record
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse annotations")
		}
		imageID, _ := tok.(string)
		var ann annotation
		if err = dec.Decode(&ann); err != nil {
			return nil, errors.Wrapf(err, "failed to parse annotation for image %q", imageID)
		}
		record, err := ann.toRecord()
		if err != nil {
			return nil, errors.WithMessagef(err, "annotation for image %q", imageID)
		}
		records = append(records, record)
	}
	if _, err = dec.Token(); err != nil {
		return nil, errors.Wrap(err, "failed to parse annotations")
	}
	return records, nil
}

func (ann annotation) toRecord() (record Record, err error) {
	record.ImagePath = ann.ImagePath
	record.ClassName = ann.ClassName
	record.Split, err = ParseSplit(ann.Split)
	if err != nil {
		return
	}
	if ann.BBox != nil {
		if len(ann.BBox) != 4 {
			err = errors.Errorf("bbox must have 4 values, got %d", len(ann.BBox))
			return
		}
		var bbox BBox
		copy(bbox[:], ann.BBox)
		record.BBox = &bbox
	}
	err = record.Validate()
	return
}

// ResolveAnnotations returns the records from `root/annotations.json`, falling back to Resolve if the
// file is not present.
func ResolveAnnotations(root string) ([]Record, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	annPath := filepath.Join(root, AnnotationsFileName)
	found, err := fsutil.FileExists(annPath)
	if err != nil {
		return nil, err
	}
	if !found {
		klog.V(1).Infof("%q not found, falling back to generic metadata resolution", annPath)
		return Resolve(root)
	}
	f, err := os.Open(annPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open annotations %q", annPath)
	}
	defer func() { _ = f.Close() }()
	records, err := ReadAnnotations(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", annPath)
	}
	return records, nil
}
