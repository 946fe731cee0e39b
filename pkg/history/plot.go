// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package history

import (
	"math"
	"os"

	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// panel of the training history plot.
type panel struct {
	title string
	value func(rec EpochRecord) float64
}

var panels = [2][2]panel{
	{
		{"Loss", func(rec EpochRecord) float64 { return rec.Loss }},
		{"F1 Score", func(rec EpochRecord) float64 { return rec.Report.F1 }},
	},
	{
		{"Precision", func(rec EpochRecord) float64 { return rec.Report.Precision }},
		{"Recall", func(rec EpochRecord) float64 { return rec.Report.Recall }},
	},
}

// seriesOf returns the points (epoch, value) of the split. Records with NaN values are skipped.
func seriesOf(records []EpochRecord, split metadata.Split, value func(EpochRecord) float64) plotter.XYs {
	var xys plotter.XYs
	for _, rec := range records {
		if rec.Split != split {
			continue
		}
		v := value(rec)
		if math.IsNaN(v) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(rec.Epoch), Y: v})
	}
	return xys
}

// PlotTraining draws a 2x2 grid with the loss, F1, precision and recall per epoch, comparing the train
// and validation splits, and saves it as PNG to filePath.
func PlotTraining(records []EpochRecord, filePath string) error {
	plots := make([][]*plot.Plot, 2)
	for row := range 2 {
		plots[row] = make([]*plot.Plot, 2)
		for col := range 2 {
			panel := panels[row][col]
			p := plot.New()
			p.Title.Text = panel.title
			p.X.Label.Text = "Epoch"
			p.Y.Label.Text = panel.title
			p.Legend.Top = true
			var lines []any
			for _, split := range []metadata.Split{metadata.Train, metadata.Validation} {
				if xys := seriesOf(records, split, panel.value); len(xys) > 0 {
					lines = append(lines, split.String(), xys)
				}
			}
			if len(lines) > 0 {
				if err := plotutil.AddLinePoints(p, lines...); err != nil {
					return errors.Wrapf(err, "failed to plot %s", panel.title)
				}
			}
			p.Add(plotter.NewGrid())
			plots[row][col] = p
		}
	}

	img := vgimg.New(15*vg.Inch, 10*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Millimeter * 5,
		PadY:      vg.Millimeter * 5,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for row := range 2 {
		for col := range 2 {
			plots[row][col].Draw(canvases[row][col])
		}
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create plot file %q", filePath)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err = png.WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write plot to %q", filePath)
	}
	return errors.Wrapf(f.Close(), "failed to close plot file %q", filePath)
}
