package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestProjectPointsIdentityPose(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 520, Ppx: 320, Ppy: 240}
	K := intrinsics.GetCameraMatrix()

	pts := []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 0.1, Y: 0.2, Z: 0}, {X: -0.05, Y: 0.1, Z: 0}}
	tvec := r3.Vector{Z: 2}
	out, err := ProjectPoints(pts, r3.Vector{}, tvec, K, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldHaveLength, 3)
	for i, pt := range pts {
		x, y := intrinsics.PointToPixel(pt.X, pt.Y, pt.Z+2)
		test.That(t, out[i].X, test.ShouldAlmostEqual, x)
		test.That(t, out[i].Y, test.ShouldAlmostEqual, y)
	}
}

func TestProjectPointsRotation(t *testing.T) {
	K := mat.NewDense(3, 3, []float64{100, 0, 50, 0, 100, 50, 0, 0, 1})
	// a quarter turn about z maps board x onto camera y
	out, err := ProjectPoints([]r3.Vector{{X: 1}}, r3.Vector{Z: math.Pi / 2}, r3.Vector{Z: 1}, K, make([]float64, 8))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out[0].X, test.ShouldAlmostEqual, 50, 1e-9)
	test.That(t, out[0].Y, test.ShouldAlmostEqual, 150, 1e-9)
}

func TestProjectPointsDistortionAndSkew(t *testing.T) {
	K := mat.NewDense(3, 3, []float64{100, 2, 50, 0, 100, 50, 0, 0, 1})
	dist := []float64{0.1, 0, 0, 0, 0, 0, 0, 0}
	out, err := ProjectPoints([]r3.Vector{{X: 0.3, Y: 0.4, Z: 0}}, r3.Vector{}, r3.Vector{Z: 1}, K, dist)
	test.That(t, err, test.ShouldBeNil)
	expected := r2.Point{X: 100*0.3075 + 2*0.41 + 50, Y: 100*0.41 + 50}
	test.That(t, out[0].X, test.ShouldAlmostEqual, expected.X, 1e-9)
	test.That(t, out[0].Y, test.ShouldAlmostEqual, expected.Y, 1e-9)
}

func TestProjectPointsErrors(t *testing.T) {
	_, err := ProjectPoints(nil, r3.Vector{}, r3.Vector{}, mat.NewDense(2, 2, nil), nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ProjectPoints(nil, r3.Vector{}, r3.Vector{}, mat.NewDense(3, 3, nil), make([]float64, 10))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPinholeCameraIntrinsics(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	err := nilIntrinsics.CheckValid()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 520, Ppx: 320, Ppy: 240}
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)

	back, err := NewPinholeCameraIntrinsicsFromCameraMatrix(intrinsics.GetCameraMatrix(), 640, 480)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, intrinsics)

	x, y, z := intrinsics.PixelToPoint(820, 760, 2)
	test.That(t, x, test.ShouldAlmostEqual, 2)
	test.That(t, y, test.ShouldAlmostEqual, 2)
	test.That(t, z, test.ShouldAlmostEqual, 2)

	intrinsics.Fy = -1
	test.That(t, intrinsics.CheckValid(), test.ShouldNotBeNil)
}
