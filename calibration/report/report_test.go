package report

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestSummarize(t *testing.T) {
	s, err := Summarize([]float64{0.1, 0.2, 0.3, 0.2, 2.0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Views, test.ShouldEqual, 5)
	test.That(t, s.Mean, test.ShouldAlmostEqual, 0.56, 1e-12)
	test.That(t, s.Median, test.ShouldAlmostEqual, 0.2, 1e-12)
	test.That(t, s.Min, test.ShouldEqual, 0.1)
	test.That(t, s.Max, test.ShouldEqual, 2.0)
	test.That(t, s.Worst, test.ShouldEqual, 4)
	test.That(t, s.StdDev, test.ShouldAlmostEqual, math.Sqrt(0.5224), 1e-9)
	test.That(t, s.Outliers, test.ShouldResemble, []int{4})
	test.That(t, s.String(), test.ShouldContainSubstring, "5 views")

	t.Run("uniform errors have no outliers", func(t *testing.T) {
		s, err := Summarize([]float64{0.5, 0.5, 0.5})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Outliers, test.ShouldBeEmpty)
		test.That(t, s.Worst, test.ShouldEqual, 0)
		test.That(t, s.StdDev, test.ShouldEqual, 0.0)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Summarize(nil)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestPlotPerViewErrors(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"errors.png", "errors.svg"} {
		path := filepath.Join(dir, name)
		test.That(t, PlotPerViewErrors([]float64{0.12, 0.3, 0.08, 0.5}, 0.29, path), test.ShouldBeNil)
		info, err := os.Stat(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
	}

	test.That(t, PlotPerViewErrors(nil, 0, filepath.Join(dir, "none.png")), test.ShouldNotBeNil)
	test.That(t, PlotPerViewErrors([]float64{1}, 1, filepath.Join(dir, "bad.unknown")), test.ShouldNotBeNil)
}
