package calibration

import (
	"image"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage/transform"
)

// Pose is the board pose relative to the camera for one view.
type Pose struct {
	// Rotation is a rotation vector: axis scaled by angle in radians.
	Rotation    r3.Vector
	Translation r3.Vector
}

// Extrinsics returns the pose as the 6-tuple (rotation, translation) stored per view.
func (p Pose) Extrinsics() [6]float64 {
	return [6]float64{
		p.Rotation.X, p.Rotation.Y, p.Rotation.Z,
		p.Translation.X, p.Translation.Y, p.Translation.Z,
	}
}

// Result is the outcome of one successful calibration run.
type Result struct {
	CameraMatrix *mat.Dense
	// Distortion holds 8 Brown-Conrady coefficients; slots 4 and 5 are always zero.
	Distortion    []float64
	Poses         []Pose
	PerViewErrors []float64
	AverageError  float64

	ImageSize image.Point
	// Flags is the effective bitmask the solver ran with.
	Flags       Flags
	AspectRatio float64
	SolverRMS   float64
}

// CameraModel returns the result as a pinhole camera with Brown-Conrady distortion.
func (r *Result) CameraModel() (*transform.PinholeCameraModel, error) {
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromCameraMatrix(r.CameraMatrix, r.ImageSize.X, r.ImageSize.Y)
	if err != nil {
		return nil, err
	}
	distortion, err := transform.NewBrownConrady(r.Distortion)
	if err != nil {
		return nil, err
	}
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}, nil
}
