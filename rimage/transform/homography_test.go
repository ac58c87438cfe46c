package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestNewHomography(t *testing.T) {
	_, err := NewHomography([]float64{})
	test.That(t, err, test.ShouldBeError, errors.New("input to NewHomography must have length of 9. Has length of 0"))

	vals := []float64{
		2.32700501e-01, -8.33535395e-03, -3.61894025e+01,
		-1.90671303e-03, 2.35303232e-01, 8.38582614e+00,
		-6.39101664e-05, -4.64582754e-05, 1.00000000e+00,
	}
	h, err := NewHomography(vals)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.At(0, 2), test.ShouldEqual, vals[2])
	test.That(t, h.Apply(r2.Point{}).X, test.ShouldAlmostEqual, vals[2])
}

func TestEstimateHomography(t *testing.T) {
	truth, err := NewHomography([]float64{
		812.0, 35.5, 310.0,
		-22.0, 790.0, 255.0,
		0.15, -0.08, 1.0,
	})
	test.That(t, err, test.ShouldBeNil)

	var src, dst []r2.Point
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			pt := r2.Point{X: float64(j) * 0.025, Y: float64(i) * 0.025}
			src = append(src, pt)
			dst = append(dst, truth.Apply(pt))
		}
	}

	h, err := EstimateHomography(src, dst)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, h.At(i, j), test.ShouldAlmostEqual, truth.At(i, j), 1e-6*(1+truth.At(i, j)*truth.At(i, j)))
		}
	}
	for i := range src {
		got := h.Apply(src[i])
		test.That(t, got.X, test.ShouldAlmostEqual, dst[i].X, 1e-8)
		test.That(t, got.Y, test.ShouldAlmostEqual, dst[i].Y, 1e-8)
	}
}

func TestEstimateHomographyErrors(t *testing.T) {
	pts := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	_, err := EstimateHomography(pts, pts)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = EstimateHomography(pts, pts[:2])
	test.That(t, err, test.ShouldNotBeNil)
}
