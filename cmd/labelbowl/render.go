package main

import (
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/labelbowl/datasets"
)

// plotClassBalance saves a bar chart with the number of annotations per
// label.
func plotClassBalance(path string, stats map[string]int) error {
	labels := make([]string, 0, len(stats))
	for l := range stats {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	values := make(plotter.Values, len(labels))
	for i, l := range labels {
		values[i] = float64(stats[l])
	}

	p := plot.New()
	p.Title.Text = "Class balance"
	p.Y.Label.Text = "annotations"
	if len(labels) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(24))
		if err != nil {
			return errors.Wrap(err, "building bar chart")
		}
		bars.Color = color.RGBA{R: 0, G: 130, B: 200, A: 255}
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
		p.NominalX(labels...)
	}
	p.Add(plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving plot to %s", path)
	}
	return nil
}

// writeSamples renders the first n samples with their annotations drawn in.
func writeSamples(g *datasets.Generator, outDir string, n int) error {
	for i := range min(n, g.NumItems()) {
		img, annotations, err := g.Visualize(i)
		if err != nil {
			return errors.WithMessagef(err, "visualizing sample %d", i)
		}
		path := filepath.Join(outDir, fmt.Sprintf("sample_%d.png", i))
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "creating %s", path)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return errors.Wrapf(err, "encoding %s", path)
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "closing %s", path)
		}
		log.WithField("path", path).Infof("wrote sample with %d annotations", len(annotations))
	}
	return nil
}
