package calibration

import (
	"context"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
)

// maxParameterMagnitude bounds every solved intrinsic and distortion value.
const maxParameterMagnitude = 1e10

// Solver is the nonlinear calibration capability. Given per view 3D/2D correspondences, the image
// size, an initial camera matrix and distortion, and the option bitmask, it returns the refined
// intrinsics and one pose per view.
type Solver interface {
	Calibrate(ctx context.Context, req SolverRequest) (*SolverOutput, error)
}

// SolverRequest is a single batch calibration problem.
type SolverRequest struct {
	ObjectPoints [][]r3.Vector
	ImagePoints  [][]r2.Point
	ImageSize    image.Point
	CameraMatrix *mat.Dense
	Distortion   []float64
	Flags        Flags
}

// SolverOutput is what a Solver returns. Rotations are rotation vectors.
type SolverOutput struct {
	CameraMatrix *mat.Dense
	Distortion   []float64
	Rotations    []r3.Vector
	Translations []r3.Vector
	// RMS is the solver's own error report; it is logged but not used as the quality metric.
	RMS float64
}

// Solve runs the solver exactly once over the finalized correspondences, validates its output and
// evaluates the reprojection error. On any failure no Result is returned.
func Solve(
	ctx context.Context,
	solver Solver,
	corr *Correspondences,
	imageSize image.Point,
	cfg Configuration,
	logger logging.Logger,
) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, NewConfigurationError("image size must be positive, got %v", imageSize)
	}
	if corr == nil || corr.Len() == 0 {
		return nil, NewInsufficientDataError()
	}

	flags := cfg.EffectiveFlags()
	req := SolverRequest{
		ObjectPoints: corr.ObjectPoints(),
		ImagePoints:  corr.ImagePoints(),
		ImageSize:    imageSize,
		CameraMatrix: initialCameraMatrix(cfg),
		Distortion:   make([]float64, transform.BrownConradyParameterCount),
		Flags:        flags,
	}
	logger.Debugw("running calibration solver",
		"views", corr.Len(), "points_per_view", corr.PointsPerView(), "flags", flags.Description())

	out, err := solver.Calibrate(ctx, req)
	if err != nil {
		return nil, NewSolverFailureError("%v", err)
	}
	if err := validateSolverOutput(out, corr.Len()); err != nil {
		return nil, err
	}
	logger.Infow("calibration solver finished", "rms", out.RMS)

	distortion := append([]float64(nil), out.Distortion...)
	if distortion[4] != 0 || distortion[5] != 0 {
		logger.Warnw("solver returned non-zero fixed distortion terms, forcing them to zero",
			"k4", distortion[4], "k5", distortion[5])
		distortion[4], distortion[5] = 0, 0
	}

	poses := make([]Pose, corr.Len())
	for i := range poses {
		poses[i] = Pose{Rotation: out.Rotations[i], Translation: out.Translations[i]}
	}
	res := &Result{
		CameraMatrix: mat.DenseCopyOf(out.CameraMatrix),
		Distortion:   distortion,
		Poses:        poses,
		ImageSize:    imageSize,
		Flags:        flags,
		AspectRatio:  cfg.AspectRatio,
		SolverRMS:    out.RMS,
	}
	res.PerViewErrors, res.AverageError, err = Evaluate(corr, res.CameraMatrix, res.Distortion, res.Poses)
	if err != nil {
		return nil, NewSolverFailureError("cannot evaluate solution: %v", err)
	}
	for i, e := range res.PerViewErrors {
		if !isFinite(e) {
			return nil, NewSolverFailureError("reprojection error of view %d is %v", i, e)
		}
	}
	if !isFinite(res.AverageError) {
		return nil, NewSolverFailureError("average reprojection error is %v", res.AverageError)
	}
	return res, nil
}

// initialCameraMatrix is the identity, or the intrinsic guess when one is used, with the aspect
// ratio written into (0,0) when it is held fixed so that fx/fy starts at the requested ratio.
func initialCameraMatrix(cfg Configuration) *mat.Dense {
	cameraMatrix := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if cfg.UseIntrinsicGuess && cfg.IntrinsicGuess != nil {
		cameraMatrix = cfg.IntrinsicGuess.GetCameraMatrix()
	}
	if cfg.FixAspectRatio {
		cameraMatrix.Set(0, 0, cfg.AspectRatio*cameraMatrix.At(1, 1))
	}
	return cameraMatrix
}

func validateSolverOutput(out *SolverOutput, views int) error {
	if out == nil {
		return NewSolverFailureError("solver returned no output")
	}
	if out.CameraMatrix == nil {
		return NewSolverFailureError("solver returned no camera matrix")
	}
	if r, c := out.CameraMatrix.Dims(); r != 3 || c != 3 {
		return NewSolverFailureError("camera matrix is %dx%d, want 3x3", r, c)
	}
	if len(out.Distortion) != transform.BrownConradyParameterCount {
		return NewSolverFailureError("got %d distortion coefficients, want %d",
			len(out.Distortion), transform.BrownConradyParameterCount)
	}
	if len(out.Rotations) != views || len(out.Translations) != views {
		return NewSolverFailureError("got %d rotations and %d translations for %d views",
			len(out.Rotations), len(out.Translations), views)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !inRange(out.CameraMatrix.At(i, j)) {
				return NewSolverFailureError("camera matrix entry (%d,%d) = %v is out of range", i, j, out.CameraMatrix.At(i, j))
			}
		}
	}
	for i, d := range out.Distortion {
		if !inRange(d) {
			return NewSolverFailureError("distortion coefficient %d = %v is out of range", i, d)
		}
	}
	for i := 0; i < views; i++ {
		if !finiteVector(out.Rotations[i]) || !finiteVector(out.Translations[i]) {
			return NewSolverFailureError("pose of view %d is not finite: rotation %v, translation %v",
				i, out.Rotations[i], out.Translations[i])
		}
	}
	return nil
}

func inRange(v float64) bool {
	return !math.IsNaN(v) && math.Abs(v) <= maxParameterMagnitude
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVector(v r3.Vector) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}
