package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewBrownConrady(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, -0.05})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, -0.05, 0, 0, 0, 0, 0, 0})
	test.That(t, bc.CheckValid(), test.ShouldBeNil)

	_, err = NewBrownConrady(make([]float64, 9))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected max 8, got 9")

	var nilBC *BrownConrady
	test.That(t, nilBC.CheckValid(), test.ShouldNotBeNil)
	x, y := nilBC.Transform(0.3, 0.4)
	test.That(t, x, test.ShouldEqual, 0.3)
	test.That(t, y, test.ShouldEqual, 0.4)
}

func TestBrownConradyTransform(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	// r² = 0.25, radial = 1.025
	x, y := bc.Transform(0.3, 0.4)
	test.That(t, x, test.ShouldAlmostEqual, 0.3075)
	test.That(t, y, test.ShouldAlmostEqual, 0.41)

	bc.TangentialP1 = 0.01
	x, y = bc.Transform(0.3, 0.4)
	test.That(t, x, test.ShouldAlmostEqual, 0.3075+2*0.01*0.3*0.4)
	test.That(t, y, test.ShouldAlmostEqual, 0.41+0.01*(0.25+2*0.16))
}

func TestBrownConradyUndistortRoundTrip(t *testing.T) {
	bc, err := NewBrownConrady([]float64{-0.21, 0.08, 0.001, -0.0005, 0.01})
	test.That(t, err, test.ShouldBeNil)
	for _, pt := range []r2.Point{{X: 0, Y: 0}, {X: 0.1, Y: -0.2}, {X: -0.35, Y: 0.25}, {X: 0.4, Y: 0.3}} {
		xd, yd := bc.Transform(pt.X, pt.Y)
		x, y := bc.Undistort(xd, yd)
		test.That(t, x, test.ShouldAlmostEqual, pt.X, 1e-8)
		test.That(t, y, test.ShouldAlmostEqual, pt.Y, 1e-8)

		inverse := &InverseBrownConrady{bc}
		x, y = inverse.Transform(xd, yd)
		test.That(t, x, test.ShouldAlmostEqual, pt.X, 1e-8)
		test.That(t, y, test.ShouldAlmostEqual, pt.Y, 1e-8)
	}
}

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	d, err = NewDistorter(InverseBrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)
	test.That(t, d.Parameters(), test.ShouldHaveLength, 8)

	_, err = NewDistorter("kannala_brandt", nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPinholeCameraModelUndistortPoint(t *testing.T) {
	bc, err := NewBrownConrady([]float64{-0.2, 0.05, 0.001, 0.002})
	test.That(t, err, test.ShouldBeNil)
	model := &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 610, Ppx: 319.5, Ppy: 239.5},
		Distortion:              bc,
	}
	camPt := r3.Vector{X: 0.12, Y: -0.07, Z: 0.5}
	distorted := model.ProjectPoint(camPt)
	ideal, err := model.UndistortPoint(distorted)
	test.That(t, err, test.ShouldBeNil)

	x, y := model.PointToPixel(camPt.X, camPt.Y, camPt.Z)
	test.That(t, ideal.X, test.ShouldAlmostEqual, x, 1e-6)
	test.That(t, ideal.Y, test.ShouldAlmostEqual, y, 1e-6)

	// the distortion map sends the ideal pixel back to the observed one
	dx, dy := model.DistortionMap()(x, y)
	test.That(t, dx, test.ShouldAlmostEqual, distorted.X, 1e-9)
	test.That(t, dy, test.ShouldAlmostEqual, distorted.Y, 1e-9)

	// a model whose distortion is already the inverse undistorts with the forward map
	inverse, err := NewDistorter(InverseBrownConradyDistortionType, bc.Parameters())
	test.That(t, err, test.ShouldBeNil)
	inverseModel := &PinholeCameraModel{PinholeCameraIntrinsics: model.PinholeCameraIntrinsics, Distortion: inverse}
	back, err := inverseModel.UndistortPoint(r2.Point{X: x, Y: y})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.X, test.ShouldAlmostEqual, distorted.X, 1e-9)
	test.That(t, back.Y, test.ShouldAlmostEqual, distorted.Y, 1e-9)

	model.Distortion = nil
	same, err := model.UndistortPoint(distorted)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldResemble, distorted)

	model.PinholeCameraIntrinsics.Fx = 0
	_, err = model.UndistortPoint(distorted)
	test.That(t, err, test.ShouldNotBeNil)
}
