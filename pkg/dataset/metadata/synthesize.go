// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/leaflens/leaflens/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ImageExtensions recognized when synthesizing metadata from a directory layout. Matching is
// case-insensitive.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff"}

// IsImageFile returns whether the file name has one of the ImageExtensions.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, imgExt := range ImageExtensions {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// Synthesize creates the records from a `root/<class_name>/<image>` layout.
//
// Every immediate subdirectory of root that is not hidden (dot-prefixed) is a class, and every image file
// directly inside it becomes one record, with its split given by AssignSplit. Directories and files are
// visited in lexicographic order, so the result is deterministic.
//
// An empty root yields no records and no error.
func Synthesize(root string) ([]Record, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list dataset root %q", root)
	}
	var records []Record
	numClasses := 0
	for _, entry := range entries {
		className := entry.Name()
		if fsutil.IsHidden(className) {
			continue
		}
		classDir := filepath.Join(root, className)
		isDir, err := fsutil.IsDir(classDir)
		if err != nil {
			return nil, err
		}
		if !isDir {
			continue
		}
		numClasses++
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list class directory %q", classDir)
		}
		numImages := 0
		for _, file := range files {
			name := file.Name()
			if file.IsDir() || fsutil.IsHidden(name) || !IsImageFile(name) {
				continue
			}
			records = append(records, Record{
				ImagePath: path.Join(className, name),
				ClassName: className,
				Split:     AssignSplit(name),
			})
			numImages++
		}
		if numImages == 0 {
			klog.Warningf("class directory %q has no images", classDir)
		}
	}
	klog.V(1).Infof("synthesized %s records from %d class directories in %q",
		humanize.Comma(int64(len(records))), numClasses, root)
	return records, nil
}
