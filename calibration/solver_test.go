package calibration_test

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/calibration/calibtest"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
)

func newScene(t *testing.T) (*calibtest.Scene, *calibration.Correspondences) {
	t.Helper()
	scene, err := calibtest.NewScene()
	test.That(t, err, test.ShouldBeNil)
	corr, err := scene.Correspondences()
	test.That(t, err, test.ShouldBeNil)
	return scene, corr
}

func TestSolveNoiseFree(t *testing.T) {
	scene, corr := newScene(t)
	solver := &calibtest.Solver{Output: scene.SolverOutput()}
	logger := logging.NewTestLogger(t)

	res, err := calibration.Solve(context.Background(), solver, corr, scene.ImageSize, calibration.Configuration{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.PerViewErrors, test.ShouldHaveLength, 3)
	for _, e := range res.PerViewErrors {
		test.That(t, e, test.ShouldBeLessThan, 1e-9)
	}
	test.That(t, res.AverageError, test.ShouldBeLessThan, 1e-9)
	test.That(t, res.Poses, test.ShouldResemble, scene.Poses)
	test.That(t, res.Distortion, test.ShouldHaveLength, 8)
	test.That(t, res.Flags, test.ShouldEqual, calibration.PolicyFlags)
	test.That(t, res.ImageSize, test.ShouldResemble, image.Point{X: 640, Y: 480})
	test.That(t, mat.Equal(res.CameraMatrix, scene.CameraMatrix), test.ShouldBeTrue)

	reqs := solver.Requests()
	test.That(t, reqs, test.ShouldHaveLength, 1)
	req := reqs[0]
	test.That(t, req.Flags.Has(calibration.FlagFixK4|calibration.FlagFixK5), test.ShouldBeTrue)
	test.That(t, req.ObjectPoints, test.ShouldHaveLength, 3)
	test.That(t, req.ImagePoints, test.ShouldHaveLength, 3)
	test.That(t, req.Distortion, test.ShouldResemble, make([]float64, 8))
	test.That(t, mat.Equal(req.CameraMatrix, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})), test.ShouldBeTrue)

	model, err := res.CameraModel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Fx, test.ShouldEqual, 800.0)
	test.That(t, model.Ppx, test.ShouldEqual, 319.5)
}

func TestSolveSeeding(t *testing.T) {
	scene, corr := newScene(t)
	logger := logging.NewTestLogger(t)

	t.Run("fixed aspect ratio", func(t *testing.T) {
		solver := &calibtest.Solver{Output: scene.SolverOutput()}
		cfg := calibration.Configuration{FixAspectRatio: true, AspectRatio: 1.5, ZeroTangentialDistortion: true}
		res, err := calibration.Solve(context.Background(), solver, corr, scene.ImageSize, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.AspectRatio, test.ShouldEqual, 1.5)
		req := solver.Requests()[0]
		test.That(t, req.CameraMatrix.At(0, 0), test.ShouldEqual, 1.5)
		test.That(t, req.CameraMatrix.At(1, 1), test.ShouldEqual, 1.0)
		test.That(t, req.Flags, test.ShouldEqual,
			calibration.FlagFixAspectRatio|calibration.FlagZeroTangentDist|calibration.PolicyFlags)
	})

	t.Run("intrinsic guess", func(t *testing.T) {
		solver := &calibtest.Solver{Output: scene.SolverOutput()}
		guess := &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 700, Fy: 710, Ppx: 320, Ppy: 240}
		cfg := calibration.Configuration{UseIntrinsicGuess: true, IntrinsicGuess: guess, FixPrincipalPoint: true}
		_, err := calibration.Solve(context.Background(), solver, corr, scene.ImageSize, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		req := solver.Requests()[0]
		test.That(t, mat.Equal(req.CameraMatrix, guess.GetCameraMatrix()), test.ShouldBeTrue)
		test.That(t, req.Flags.Has(calibration.FlagUseIntrinsicGuess|calibration.FlagFixPrincipalPoint), test.ShouldBeTrue)
	})

	t.Run("intrinsic guess with fixed aspect ratio", func(t *testing.T) {
		solver := &calibtest.Solver{Output: scene.SolverOutput()}
		guess := &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 700, Fy: 710, Ppx: 320, Ppy: 240}
		cfg := calibration.Configuration{UseIntrinsicGuess: true, IntrinsicGuess: guess, FixAspectRatio: true, AspectRatio: 2}
		_, err := calibration.Solve(context.Background(), solver, corr, scene.ImageSize, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		req := solver.Requests()[0]
		test.That(t, req.CameraMatrix.At(0, 0), test.ShouldEqual, 1420.0)
		test.That(t, req.CameraMatrix.At(0, 2), test.ShouldEqual, 320.0)
	})
}

func TestSolveRejectsConfiguration(t *testing.T) {
	scene, corr := newScene(t)
	logger := logging.NewTestLogger(t)

	for _, tc := range []struct {
		name string
		cfg  calibration.Configuration
		size image.Point
	}{
		{"zero aspect ratio", calibration.Configuration{FixAspectRatio: true}, scene.ImageSize},
		{"negative aspect ratio", calibration.Configuration{FixAspectRatio: true, AspectRatio: -1}, scene.ImageSize},
		{"nan aspect ratio", calibration.Configuration{FixAspectRatio: true, AspectRatio: math.NaN()}, scene.ImageSize},
		{"missing guess", calibration.Configuration{UseIntrinsicGuess: true}, scene.ImageSize},
		{"invalid guess", calibration.Configuration{
			UseIntrinsicGuess: true,
			IntrinsicGuess:    &transform.PinholeCameraIntrinsics{Width: 640, Height: 480},
		}, scene.ImageSize},
		{"empty image", calibration.Configuration{}, image.Point{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			solver := &calibtest.Solver{Output: scene.SolverOutput()}
			_, err := calibration.Solve(context.Background(), solver, corr, tc.size, tc.cfg, logger)
			test.That(t, err, test.ShouldWrap, calibration.ErrConfiguration)
			test.That(t, solver.Requests(), test.ShouldBeEmpty)
		})
	}
}

func TestSolveRejectsSolverOutput(t *testing.T) {
	scene, corr := newScene(t)
	logger := logging.NewTestLogger(t)

	for _, tc := range []struct {
		name   string
		mutate func(out *calibration.SolverOutput)
	}{
		{"nan camera matrix", func(out *calibration.SolverOutput) { out.CameraMatrix.Set(0, 0, math.NaN()) }},
		{"infinite camera matrix", func(out *calibration.SolverOutput) { out.CameraMatrix.Set(1, 2, math.Inf(-1)) }},
		{"huge distortion", func(out *calibration.SolverOutput) { out.Distortion[0] = 1e11 }},
		{"short distortion", func(out *calibration.SolverOutput) { out.Distortion = out.Distortion[:5] }},
		{"wrong shape", func(out *calibration.SolverOutput) { out.CameraMatrix = mat.NewDense(2, 3, nil) }},
		{"missing pose", func(out *calibration.SolverOutput) { out.Rotations = out.Rotations[:2] }},
		{"missing translation", func(out *calibration.SolverOutput) { out.Translations = nil }},
		{"no camera matrix", func(out *calibration.SolverOutput) { out.CameraMatrix = nil }},
		{"nan translation", func(out *calibration.SolverOutput) { out.Translations[0].Z = math.NaN() }},
		{"nan rotation", func(out *calibration.SolverOutput) { out.Rotations[1].X = math.NaN() }},
		{"infinite translation", func(out *calibration.SolverOutput) { out.Translations[2].Y = math.Inf(1) }},
		{"reprojection error overflows", func(out *calibration.SolverOutput) {
			out.Translations[0] = r3.Vector{X: 1e300, Y: 0, Z: 0.5}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := scene.SolverOutput()
			tc.mutate(out)
			res, err := calibration.Solve(context.Background(), &calibtest.Solver{Output: out}, corr,
				scene.ImageSize, calibration.Configuration{}, logger)
			test.That(t, err, test.ShouldWrap, calibration.ErrSolverFailure)
			test.That(t, res, test.ShouldBeNil)
		})
	}

	t.Run("solver error", func(t *testing.T) {
		solver := &calibtest.Solver{Err: errors.New("did not converge")}
		_, err := calibration.Solve(context.Background(), solver, corr, scene.ImageSize, calibration.Configuration{}, logger)
		test.That(t, err, test.ShouldWrap, calibration.ErrSolverFailure)
		test.That(t, err.Error(), test.ShouldContainSubstring, "did not converge")
		test.That(t, solver.Requests(), test.ShouldHaveLength, 1)
	})

	t.Run("no output", func(t *testing.T) {
		_, err := calibration.Solve(context.Background(), &calibtest.Solver{}, corr,
			scene.ImageSize, calibration.Configuration{}, logger)
		test.That(t, err, test.ShouldWrap, calibration.ErrSolverFailure)
	})
}

func TestSolvePinsFixedDistortionTerms(t *testing.T) {
	scene, corr := newScene(t)
	logger, logs := logging.NewObservedTestLogger(t)

	out := scene.SolverOutput()
	out.Distortion = []float64{0, 0, 0, 0, 0.3, -0.2, 0, 0}
	res, err := calibration.Solve(context.Background(), &calibtest.Solver{Output: out}, corr,
		scene.ImageSize, calibration.Configuration{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Distortion[4], test.ShouldEqual, 0.0)
	test.That(t, res.Distortion[5], test.ShouldEqual, 0.0)
	test.That(t, res.AverageError, test.ShouldBeLessThan, 1e-9)
	test.That(t, logs.FilterMessageSnippet("forcing them to zero").Len(), test.ShouldEqual, 1)
	// the solver's own output is left alone
	test.That(t, out.Distortion[4], test.ShouldEqual, 0.3)

	t.Run("other terms kept", func(t *testing.T) {
		out := scene.SolverOutput()
		out.Distortion = []float64{0.01, -0.02, 0.001, 0.002, 0, 0, 0.003, 0}
		res, err := calibration.Solve(context.Background(), &calibtest.Solver{Output: out}, corr,
			scene.ImageSize, calibration.Configuration{}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Distortion, test.ShouldResemble, out.Distortion)
		// views were rendered without distortion so the error is no longer zero
		test.That(t, res.AverageError, test.ShouldBeGreaterThan, 0)
	})
}

func TestSolveWithoutViews(t *testing.T) {
	_, err := calibration.Solve(context.Background(), &calibtest.Solver{}, nil,
		image.Point{X: 10, Y: 10}, calibration.Configuration{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldWrap, calibration.ErrInsufficientData)
}

func TestPoseExtrinsics(t *testing.T) {
	p := calibration.Pose{Rotation: r3.Vector{X: 1, Y: 2, Z: 3}, Translation: r3.Vector{X: 4, Y: 5, Z: 6}}
	test.That(t, p.Extrinsics(), test.ShouldResemble, [6]float64{1, 2, 3, 4, 5, 6})
}
