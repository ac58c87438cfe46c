package planar

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/rimage/transform"
)

// Parameter vector layout: fx, fy, cx, cy, the distortion coefficients, then rotation vector and
// translation for each view.
const (
	intrinsicCount  = 4
	distortionStart = intrinsicCount
	poseStart       = distortionStart + transform.BrownConradyParameterCount
	poseSize        = 6
)

// problem is the refinement of every parameter over the reprojection error of all views.
type problem struct {
	objectPoints [][]r3.Vector
	imagePoints  [][]r2.Point
	totalPoints  int
	imageSize    image.Point

	params []float64
	// free lists the indices of params the optimizer moves.
	free []int
	// scale maps optimizer coordinates onto parameter units, per params index.
	scale []float64
	// aspect is fx/fy when the aspect ratio is held, 0 otherwise.
	aspect float64
}

func newProblem(req calibration.SolverRequest) (*problem, error) {
	views := len(req.ObjectPoints)
	p := &problem{
		objectPoints: req.ObjectPoints,
		imagePoints:  req.ImagePoints,
		imageSize:    req.ImageSize,
		params:       make([]float64, poseStart+poseSize*views),
	}
	for _, v := range req.ObjectPoints {
		p.totalPoints += len(v)
	}

	seed := req.CameraMatrix
	if req.Flags.Has(calibration.FlagFixAspectRatio) {
		p.aspect = seed.At(0, 0) / seed.At(1, 1)
		if !(p.aspect > 0) || math.IsInf(p.aspect, 0) {
			return nil, errors.Errorf("cannot hold aspect ratio %v", p.aspect)
		}
	}

	if req.Flags.Has(calibration.FlagUseIntrinsicGuess) {
		fx, fy, cx, cy := seed.At(0, 0), seed.At(1, 1), seed.At(0, 2), seed.At(1, 2)
		if !(fx > 0) || !(fy > 0) {
			return nil, errors.Errorf("focal length guess (%v, %v) must be positive", fx, fy)
		}
		if cx < 0 || cx >= float64(req.ImageSize.X) || cy < 0 || cy >= float64(req.ImageSize.Y) {
			return nil, errors.Errorf("principal point guess (%v, %v) is outside the image", cx, cy)
		}
		p.params[0], p.params[1], p.params[2], p.params[3] = fx, fy, cx, cy
		copy(p.params[distortionStart:poseStart], req.Distortion)
	} else {
		p.params[2] = float64(req.ImageSize.X-1) / 2
		p.params[3] = float64(req.ImageSize.Y-1) / 2
	}
	if req.Flags.Has(calibration.FlagZeroTangentDist) {
		p.params[distortionStart+2], p.params[distortionStart+3] = 0, 0
	}

	fixed := make([]bool, len(p.params))
	// fx follows fy
	fixed[0] = p.aspect > 0
	fixed[2] = req.Flags.Has(calibration.FlagFixPrincipalPoint)
	fixed[3] = fixed[2]
	fixed[distortionStart+2] = req.Flags.Has(calibration.FlagZeroTangentDist)
	fixed[distortionStart+3] = fixed[distortionStart+2]
	fixed[distortionStart+4] = req.Flags.Has(calibration.FlagFixK4)
	// the rational model is not estimated
	for i := distortionStart + 5; i < poseStart; i++ {
		fixed[i] = true
	}
	for i, f := range fixed {
		if !f {
			p.free = append(p.free, i)
		}
	}
	return p, nil
}

// initScale sets the optimizer scaling from the initial estimate so every free coordinate starts
// at a magnitude near one.
func (p *problem) initScale() {
	p.scale = make([]float64, len(p.params))
	p.scale[0] = math.Max(p.params[0], 1)
	p.scale[1] = math.Max(p.params[1], 1)
	p.scale[2] = float64(p.imageSize.X)
	p.scale[3] = float64(p.imageSize.Y)
	for i := distortionStart; i < poseStart; i++ {
		p.scale[i] = 1
	}
	for v := 0; v < len(p.objectPoints); v++ {
		_, t := p.pose(p.params, v)
		tScale := math.Max(t.Norm(), 1e-6)
		base := poseStart + poseSize*v
		for i := 0; i < 3; i++ {
			p.scale[base+i] = 1
			p.scale[base+3+i] = tScale
		}
	}
}

// pack returns the optimizer coordinates of params.
func (p *problem) pack(params []float64) []float64 {
	x := make([]float64, len(p.free))
	for j, i := range p.free {
		x[j] = params[i] / p.scale[i]
	}
	return x
}

// unpack returns a full parameter vector for optimizer coordinates x.
func (p *problem) unpack(x []float64) []float64 {
	params := append([]float64(nil), p.params...)
	for j, i := range p.free {
		params[i] = x[j] * p.scale[i]
	}
	if p.aspect > 0 {
		params[0] = p.aspect * params[1]
	}
	return params
}

func (p *problem) cameraMatrix(params []float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params[0], 0, params[2],
		0, params[1], params[3],
		0, 0, 1,
	})
}

func (p *problem) distortion(params []float64) []float64 {
	return params[distortionStart:poseStart]
}

func (p *problem) pose(params []float64, view int) (r3.Vector, r3.Vector) {
	base := poseStart + poseSize*view
	return r3.Vector{X: params[base], Y: params[base+1], Z: params[base+2]},
		r3.Vector{X: params[base+3], Y: params[base+4], Z: params[base+5]}
}

func (p *problem) setPose(params []float64, view int, rvec, tvec r3.Vector) {
	base := poseStart + poseSize*view
	copy(params[base:base+poseSize], []float64{rvec.X, rvec.Y, rvec.Z, tvec.X, tvec.Y, tvec.Z})
}

// sumSquares is the squared reprojection error summed over every point of every view.
func (p *problem) sumSquares(params []float64) float64 {
	cameraMatrix := p.cameraMatrix(params)
	distortion := p.distortion(params)
	total := 0.0
	for v := range p.objectPoints {
		rvec, tvec := p.pose(params, v)
		projected, err := transform.ProjectPoints(p.objectPoints[v], rvec, tvec, cameraMatrix, distortion)
		if err != nil {
			return math.Inf(1)
		}
		for i, pt := range projected {
			d := pt.Sub(p.imagePoints[v][i])
			total += d.X*d.X + d.Y*d.Y
		}
	}
	return total
}

// objective is the mean squared residual per coordinate at optimizer coordinates x.
func (p *problem) objective(x []float64) float64 {
	return p.sumSquares(p.unpack(x)) / float64(2*p.totalPoints)
}

// rms is the root mean squared reprojection error per point.
func (p *problem) rms(params []float64) float64 {
	return math.Sqrt(p.sumSquares(params) / float64(p.totalPoints))
}
