// Package report summarizes the per view reprojection errors of a calibration and draws them.
package report

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Summary describes the spread of per view reprojection errors.
type Summary struct {
	Views  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	StdDev float64
	// Worst is the index of the view with the largest error.
	Worst int
	// Outliers are the views whose error exceeds the median by more than three median absolute deviations.
	Outliers []int
}

// Summarize computes the summary of the given per view errors.
func Summarize(perView []float64) (*Summary, error) {
	if len(perView) == 0 {
		return nil, errors.New("no per view errors to summarize")
	}
	data := stats.Float64Data(perView)
	s := &Summary{Views: len(perView)}
	var err error
	if s.Mean, err = data.Mean(); err != nil {
		return nil, err
	}
	if s.Median, err = data.Median(); err != nil {
		return nil, err
	}
	if s.Min, err = data.Min(); err != nil {
		return nil, err
	}
	if s.Max, err = data.Max(); err != nil {
		return nil, err
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return nil, err
	}
	mad, err := stats.MedianAbsoluteDeviation(data)
	if err != nil {
		return nil, err
	}
	for i, e := range perView {
		if e > perView[s.Worst] {
			s.Worst = i
		}
		if mad > 0 && e-s.Median > 3*mad {
			s.Outliers = append(s.Outliers, i)
		}
	}
	return s, nil
}

// String renders the summary on one line.
func (s *Summary) String() string {
	return fmt.Sprintf("%d views: mean %.4g, median %.4g, min %.4g, max %.4g (view %d), stddev %.4g",
		s.Views, s.Mean, s.Median, s.Min, s.Max, s.Worst, s.StdDev)
}

// PlotPerViewErrors draws the per view errors as a bar chart with a line at the aggregate error
// and saves it to path. The image format follows the extension.
func PlotPerViewErrors(perView []float64, average float64, path string) error {
	if len(perView) == 0 {
		return errors.New("no per view errors to plot")
	}
	p := plot.New()
	p.Title.Text = "Reprojection error per view"
	p.X.Label.Text = "view"
	p.Y.Label.Text = "error (px)"

	bars, err := plotter.NewBarChart(plotter.Values(perView), vg.Points(12))
	if err != nil {
		return errors.Wrap(err, "cannot build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	if !math.IsNaN(average) {
		line, err := plotter.NewLine(plotter.XYs{
			{X: -0.5, Y: average},
			{X: float64(len(perView)) - 0.5, Y: average},
		})
		if err != nil {
			return errors.Wrap(err, "cannot build average line")
		}
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("average %.4g", average), line)
	}

	width := vg.Length(math.Max(4, 0.3*float64(len(perView)))) * vg.Inch
	if err := p.Save(width, 3*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot save plot to %q", path)
	}
	return nil
}
