package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/spatialmath"
)

// ProjectPoints projects object points through a pose (rotation vector and translation), a 3x3
// camera matrix and up to 8 Brown-Conrady coefficients into pixel coordinates. The skew term at
// (0,1) of the camera matrix is honoured.
func ProjectPoints(
	objectPoints []r3.Vector,
	rvec, tvec r3.Vector,
	cameraMatrix mat.Matrix,
	distortion []float64,
) ([]r2.Point, error) {
	if r, c := cameraMatrix.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	bc, err := NewBrownConrady(distortion)
	if err != nil {
		return nil, err
	}
	fx, skew, cx := cameraMatrix.At(0, 0), cameraMatrix.At(0, 1), cameraMatrix.At(0, 2)
	fy, cy := cameraMatrix.At(1, 1), cameraMatrix.At(1, 2)

	rot := spatialmath.RotationVectorToMatrix(rvec)
	out := make([]r2.Point, len(objectPoints))
	for i, pt := range objectPoints {
		x, y := normalizedCoordinates(rot.Mul(pt).Add(tvec))
		xd, yd := bc.Transform(x, y)
		out[i] = r2.Point{X: fx*xd + skew*yd + cx, Y: fy*yd + cy}
	}
	return out, nil
}
