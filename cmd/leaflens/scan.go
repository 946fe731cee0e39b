// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/leaflens/leaflens/pkg/core/tensors"
	"github.com/leaflens/leaflens/pkg/dataset"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/pkg/loader"
	"github.com/leaflens/leaflens/pkg/metrics"
	"github.com/leaflens/leaflens/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

func scanCmd() *cobra.Command {
	var splitName, dumpDir string
	var epochs, numDump int
	var half, shuffle, dropIncomplete bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "stream a split through the loader, as a training loop would, and report throughput and label counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			split, err := metadata.ParseSplit(splitName)
			if err != nil {
				return err
			}
			ds, err := openDataset(cfg, split)
			if err != nil {
				return err
			}
			fmt.Printf("Transform: %s\n", ds.Transform())
			if dumpDir != "" {
				if err := dumpSamples(ds, dumpDir, numDump); err != nil {
					return err
				}
			}
			for epoch := range epochs {
				opts := scanOptions{
					batchSize:      cfg.BatchSize,
					parallelism:    cfg.NumWorkers,
					shuffle:        shuffle,
					seed:           cfg.Seed,
					dropIncomplete: dropIncomplete,
					half:           half,
				}
				if err := scanEpoch(ds.ForEpoch(epoch), epoch, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&splitName, "split", "train", `Split to scan: "train", "val" or "test".`)
	flags.IntVar(&epochs, "epochs", 1, "Number of epochs to scan.")
	flags.BoolVar(&shuffle, "shuffle", true, "Shuffle the samples, using the configured seed.")
	flags.BoolVar(&dropIncomplete, "drop-incomplete", false, "Drop the last batch of each epoch if it is incomplete.")
	flags.BoolVar(&half, "half", false, "Also measure the float16 quantization error of the image batches, and their float16 memory.")
	flags.StringVar(&dumpDir, "dump-dir", "", "If set, the first --dump transformed images are saved as PNG files to this directory.")
	flags.IntVar(&numDump, "dump", 8, "Number of transformed images to save with --dump-dir.")
	return cmd
}

type scanOptions struct {
	batchSize, parallelism int
	shuffle                bool
	seed                   uint64
	dropIncomplete         bool
	half                   bool
}

// scanEpoch loads every batch of one epoch, displaying the progress, and reports the label counts and the
// pixel statistics.
func scanEpoch(ds *dataset.Dataset, epoch int, opts scanOptions) error {
	l := loader.New(ds, opts.batchSize).Parallelism(opts.parallelism).DropIncomplete(opts.dropIncomplete)
	if opts.shuffle {
		l.Shuffle(opts.seed)
	}
	l.Start()
	defer l.Done()

	registry := ds.Registry()
	labelCounts := make(map[string]int, registry.NumClasses)
	var numBatches, numSamples int
	var memory uint64
	var halfMaxErr, halfErrSum float64
	var numHalfValues int
	var batchMeans []float64
	pBar := commandline.NewProgressBar(fmt.Sprintf("Epoch %d", epoch), ds.Len(), "images",
		func() (string, string) { return "Batches", humanize.Comma(int64(numBatches)) },
		func() (string, string) { return "Memory", humanize.Bytes(memory) },
	)
	defer pBar.Finish()
	for {
		batch, err := l.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.WithMessagef(err, "epoch %d", epoch)
		}
		numBatches++
		numSamples += batch.Size()
		memory += uint64(batch.Images.Memory() + batch.Labels.Memory())
		if opts.half {
			batchMax, batchMean := batch.Images.Float16Error()
			halfMaxErr = max(halfMaxErr, batchMax)
			halfErrSum += batchMean * float64(batch.Images.Size())
			numHalfValues += batch.Images.Size()
		}
		batchMeans = append(batchMeans, stat.Mean(toFloat64(batch.Images), nil))
		for _, row := range metrics.Rows(batch.Labels) {
			for classIdx, value := range row {
				if value > 0 {
					labelCounts[registry.Name(classIdx)]++
				}
			}
		}
		pBar.Add(batch.Size())
	}
	pBar.Finish()

	klog.Infof("epoch %d: %s samples in %s batches, %s of float32 tensors", epoch,
		humanize.Comma(int64(numSamples)), humanize.Comma(int64(numBatches)), humanize.Bytes(memory))
	if opts.half && numHalfValues > 0 {
		klog.Infof("epoch %d: images as float16 would take %s, quantization error max %.3g, mean %.3g", epoch,
			humanize.Bytes(uint64(numHalfValues)*2), halfMaxErr, halfErrSum/float64(numHalfValues))
	}
	if len(batchMeans) > 0 {
		mean, std := stat.MeanStdDev(batchMeans, nil)
		klog.V(1).Infof("epoch %d: normalized pixel mean per batch %.4f (std %.4f)", epoch, mean, std)
	}
	commandline.ReportCounts(os.Stdout, fmt.Sprintf("Labels in epoch %d", epoch), [2]string{"Class", "Samples"},
		registry.Classes, labelCounts)
	return nil
}

func toFloat64(t *tensors.Tensor) []float64 {
	flat := t.Flat()
	values := make([]float64, len(flat))
	for ii, v := range flat {
		values[ii] = float64(v)
	}
	return values
}

// dumpSamples saves the first n transformed images of the dataset, with the normalization undone.
func dumpSamples(ds *dataset.Dataset, dir string, n int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %q", dir)
	}
	n = min(n, ds.Len())
	for ii := range n {
		sample, err := ds.Get(ii)
		if err != nil {
			return err
		}
		img := ds.Transform().ToImage(sample.Image)
		name := fmt.Sprintf("%05d_%s.png", ii, sample.Record.ClassName)
		if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
			return errors.Wrapf(err, "failed to save sample #%d", ii)
		}
	}
	klog.Infof("saved %d transformed images to %q", n, dir)
	return nil
}
