// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"context"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/leaflens/leaflens/internal/workerspool"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// InvalidImage is an image that failed to decode.
type InvalidImage struct {
	Record metadata.Record
	Err    error
}

// Validate decodes every image of the dataset, of all splits, and returns the ones that failed.
// Files are never moved or deleted.
//
// It uses up to `workers` parallel decodes (runtime.NumCPU() if <= 0), and displays a progress bar if progress
// is true. It only returns an error if ctx is cancelled: the invalid images found so far are returned with it.
func (d *Dataset) Validate(ctx context.Context, workers int, progress bool) ([]InvalidImage, error) {
	pool := workerspool.New()
	if workers > 0 {
		pool.WithMaxParallelism(workers)
	}
	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.Default(int64(len(d.records)), "validating images")
	}

	var mu sync.Mutex
	var invalid []InvalidImage
	for _, record := range d.records {
		if ctx.Err() != nil {
			break
		}
		pool.Go(func() {
			imagePath := filepath.Join(d.root, filepath.FromSlash(record.ImagePath))
			if _, err := DecodeImage(imagePath); err != nil {
				klog.Warningf("invalid image: %v", err)
				mu.Lock()
				invalid = append(invalid, InvalidImage{Record: record, Err: err})
				mu.Unlock()
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		})
	}
	pool.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	// Report in metadata order, regardless of the order the workers finished.
	position := make(map[string]int, len(d.records))
	for ii, record := range d.records {
		position[record.ImagePath] = ii
	}
	slices.SortFunc(invalid, func(a, b InvalidImage) int {
		return position[a.Record.ImagePath] - position[b.Record.ImagePath]
	})
	klog.Infof("validated %s images: %d invalid", humanize.Comma(int64(len(d.records))), len(invalid))
	return invalid, ctx.Err()
}
