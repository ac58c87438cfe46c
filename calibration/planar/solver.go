// Package planar implements calibration.Solver for planar targets: a closed form estimate of the
// intrinsics and board poses from per view homographies, followed by joint nonlinear refinement of
// every free parameter over the reprojection error.
package planar

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
	"go.viam.com/camcalib/spatialmath"
)

// DefaultMaxIterations bounds the refinement when no limit is configured.
const DefaultMaxIterations = 500

// Solver is a calibration.Solver for views of a planar board.
type Solver struct {
	// MaxIterations bounds the major iterations of the refinement.
	MaxIterations int
	logger        logging.Logger
}

// NewSolver returns a planar solver that logs through logger.
func NewSolver(logger logging.Logger) *Solver {
	return &Solver{MaxIterations: DefaultMaxIterations, logger: logger}
}

var _ calibration.Solver = (*Solver)(nil)

// Calibrate estimates the camera matrix, distortion and per view poses.
func (s *Solver) Calibrate(ctx context.Context, req calibration.SolverRequest) (*calibration.SolverOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	homographies := make([]*mat.Dense, len(req.ObjectPoints))
	for i := range req.ObjectPoints {
		h, err := viewHomography(req.ObjectPoints[i], req.ImagePoints[i])
		if err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
		homographies[i] = h
	}

	p, err := newProblem(req)
	if err != nil {
		return nil, err
	}
	if !req.Flags.Has(calibration.FlagUseIntrinsicGuess) {
		fallback := float64(max(req.ImageSize.X, req.ImageSize.Y))
		fx, fy := initFocalLengths(homographies, p.params[2], p.params[3], p.aspect, fallback)
		p.params[0], p.params[1] = fx, fy
	}
	s.logger.Debugw("initial intrinsics", "fx", p.params[0], "fy", p.params[1], "cx", p.params[2], "cy", p.params[3])

	cameraMatrix := p.cameraMatrix(p.params)
	for i, h := range homographies {
		rvec, tvec, err := poseFromHomography(cameraMatrix, h)
		if err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
		p.setPose(p.params, i, rvec, tvec)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	final := s.refine(p)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &calibration.SolverOutput{
		CameraMatrix: p.cameraMatrix(final),
		Distortion:   append([]float64(nil), p.distortion(final)...),
		RMS:          p.rms(final),
	}
	for i := range req.ObjectPoints {
		rvec, tvec := p.pose(final, i)
		out.Rotations = append(out.Rotations, rvec)
		out.Translations = append(out.Translations, tvec)
	}
	return out, nil
}

func checkRequest(req calibration.SolverRequest) error {
	if len(req.ObjectPoints) == 0 {
		return errors.New("no views to calibrate")
	}
	if len(req.ObjectPoints) != len(req.ImagePoints) {
		return errors.Errorf("got %d object point sets and %d image point sets", len(req.ObjectPoints), len(req.ImagePoints))
	}
	for i := range req.ObjectPoints {
		if len(req.ObjectPoints[i]) != len(req.ImagePoints[i]) {
			return errors.Errorf("view %d has %d object points and %d image points",
				i, len(req.ObjectPoints[i]), len(req.ImagePoints[i]))
		}
		if len(req.ObjectPoints[i]) < 4 {
			return errors.Errorf("view %d has %d points, at least 4 are needed", i, len(req.ObjectPoints[i]))
		}
		for _, pt := range req.ObjectPoints[i] {
			if pt.Z != 0 {
				return errors.Errorf("view %d: object points must lie on the z=0 plane", i)
			}
		}
	}
	if req.ImageSize.X <= 0 || req.ImageSize.Y <= 0 {
		return errors.Errorf("invalid image size %v", req.ImageSize)
	}
	if req.CameraMatrix == nil {
		return errors.New("no initial camera matrix")
	}
	if r, c := req.CameraMatrix.Dims(); r != 3 || c != 3 {
		return errors.Errorf("initial camera matrix is %dx%d, want 3x3", r, c)
	}
	if len(req.Distortion) > transform.BrownConradyParameterCount {
		return errors.Errorf("got %d initial distortion coefficients, want at most %d",
			len(req.Distortion), transform.BrownConradyParameterCount)
	}
	return nil
}

func viewHomography(objectPoints []r3.Vector, imagePoints []r2.Point) (*mat.Dense, error) {
	plane := make([]r2.Point, len(objectPoints))
	for i, pt := range objectPoints {
		plane[i] = r2.Point{X: pt.X, Y: pt.Y}
	}
	h, err := transform.EstimateHomography(plane, imagePoints)
	if err != nil {
		return nil, err
	}
	return h.Matrix(), nil
}

// initFocalLengths solves for fx and fy given the principal point. With the principal point moved
// to the origin each homography is s*diag(fx, fy, 1)*[r1 r2 t], and the orthonormality of r1 and r2
// gives two equations per view that are linear in 1/fx² and 1/fy². When aspect is positive fx is
// tied to aspect*fy. Degenerate input falls back to the larger image side for both.
func initFocalLengths(homographies []*mat.Dense, cx, cy, aspect, fallback float64) (float64, float64) {
	shift := mat.NewDense(3, 3, []float64{1, 0, -cx, 0, 1, -cy, 0, 0, 1})

	a := mat.NewDense(2*len(homographies), 2, nil)
	b := mat.NewVecDense(2*len(homographies), nil)
	for i, h := range homographies {
		var hc mat.Dense
		hc.Mul(shift, h)
		h1 := r3.Vector{X: hc.At(0, 0), Y: hc.At(1, 0), Z: hc.At(2, 0)}
		h2 := r3.Vector{X: hc.At(0, 1), Y: hc.At(1, 1), Z: hc.At(2, 1)}
		a.SetRow(2*i, []float64{h1.X * h2.X, h1.Y * h2.Y})
		b.SetVec(2*i, -h1.Z*h2.Z)
		a.SetRow(2*i+1, []float64{h1.X*h1.X - h2.X*h2.X, h1.Y*h1.Y - h2.Y*h2.Y})
		b.SetVec(2*i+1, -(h1.Z*h1.Z - h2.Z*h2.Z))
	}

	if aspect > 0 {
		num, den := 0.0, 0.0
		for i := 0; i < a.RawMatrix().Rows; i++ {
			coef := a.At(i, 0)/(aspect*aspect) + a.At(i, 1)
			num += coef * b.AtVec(i)
			den += coef * coef
		}
		if den == 0 {
			return aspect * fallback, fallback
		}
		invFy2 := num / den
		if !(invFy2 > 0) {
			return aspect * fallback, fallback
		}
		fy := 1 / math.Sqrt(invFy2)
		return aspect * fy, fy
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return fallback, fallback
	}
	invFx2, invFy2 := x.AtVec(0), x.AtVec(1)
	if !(invFx2 > 0) || !(invFy2 > 0) {
		return fallback, fallback
	}
	return 1 / math.Sqrt(invFx2), 1 / math.Sqrt(invFy2)
}

// poseFromHomography recovers the board pose from H = s*K*[r1 r2 t]. The translation is made to
// point in front of the camera and the rotation is projected onto SO(3).
func poseFromHomography(cameraMatrix, h mat.Matrix) (r3.Vector, r3.Vector, error) {
	var kInv, m mat.Dense
	if err := kInv.Inverse(cameraMatrix); err != nil {
		return r3.Vector{}, r3.Vector{}, errors.Wrap(err, "camera matrix is singular")
	}
	m.Mul(&kInv, h)
	m1 := r3.Vector{X: m.At(0, 0), Y: m.At(1, 0), Z: m.At(2, 0)}
	m2 := r3.Vector{X: m.At(0, 1), Y: m.At(1, 1), Z: m.At(2, 1)}
	m3 := r3.Vector{X: m.At(0, 2), Y: m.At(1, 2), Z: m.At(2, 2)}

	norm := m1.Norm() + m2.Norm()
	if norm == 0 {
		return r3.Vector{}, r3.Vector{}, errors.New("degenerate homography")
	}
	lambda := 2 / norm
	r1, r2, t := m1.Mul(lambda), m2.Mul(lambda), m3.Mul(lambda)
	if t.Z < 0 {
		r1, r2, t = r1.Mul(-1), r2.Mul(-1), t.Mul(-1)
	}
	r3col := r1.Cross(r2)
	rot, err := spatialmath.NearestRotation(mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3col.X,
		r1.Y, r2.Y, r3col.Y,
		r1.Z, r2.Z, r3col.Z,
	}))
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	return rot.RotationVector(), t, nil
}
