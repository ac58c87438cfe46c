// Package calibtest provides synthetic calibration scenes and a scripted solver for tests.
package calibtest

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/rimage/transform"
)

// Scene is a camera with known parameters looking at a board from several known poses.
type Scene struct {
	Board        *calibration.BoardGeometry
	ImageSize    image.Point
	CameraMatrix *mat.Dense
	Distortion   []float64
	Poses        []calibration.Pose
	Views        []calibration.View
}

// DefaultPoses are three tilted views of a small board about half a unit in front of the camera.
var DefaultPoses = []calibration.Pose{
	{Rotation: r3.Vector{X: 0.3, Y: 0, Z: 0}, Translation: r3.Vector{X: -0.04, Y: -0.05, Z: 0.5}},
	{Rotation: r3.Vector{X: 0, Y: 0.35, Z: 0.05}, Translation: r3.Vector{X: -0.03, Y: -0.04, Z: 0.45}},
	{Rotation: r3.Vector{X: -0.25, Y: 0.2, Z: 0.1}, Translation: r3.Vector{X: -0.05, Y: -0.06, Z: 0.55}},
}

// NewScene builds a noise free scene for a 4x5 board with 0.025 squares seen by a 640x480 camera
// with an 800 pixel focal length, its principal point at the image center and no distortion.
func NewScene() (*Scene, error) {
	board, err := calibration.NewBoardGeometry(4, 5, 0.025)
	if err != nil {
		return nil, err
	}
	cameraMatrix := mat.NewDense(3, 3, []float64{
		800, 0, 319.5,
		0, 800, 239.5,
		0, 0, 1,
	})
	return NewSceneWith(board, image.Point{X: 640, Y: 480}, cameraMatrix,
		make([]float64, transform.BrownConradyParameterCount), DefaultPoses)
}

// NewSceneWith projects the board through every pose with the given camera.
func NewSceneWith(
	board *calibration.BoardGeometry,
	imageSize image.Point,
	cameraMatrix *mat.Dense,
	distortion []float64,
	poses []calibration.Pose,
) (*Scene, error) {
	s := &Scene{
		Board:        board,
		ImageSize:    imageSize,
		CameraMatrix: cameraMatrix,
		Distortion:   distortion,
		Poses:        poses,
	}
	for _, pose := range poses {
		pts, err := transform.ProjectPoints(board.Template3D(), pose.Rotation, pose.Translation, cameraMatrix, distortion)
		if err != nil {
			return nil, err
		}
		s.Views = append(s.Views, pts)
	}
	return s, nil
}

// Observations returns every view as a found observation.
func (s *Scene) Observations() []calibration.Observation {
	out := make([]calibration.Observation, len(s.Views))
	for i, v := range s.Views {
		out[i] = calibration.Observation{Source: fmt.Sprintf("view%d.png", i), ImageSize: s.ImageSize, Points: v}
	}
	return out
}

// Correspondences accumulates and finalizes every view.
func (s *Scene) Correspondences() (*calibration.Correspondences, error) {
	acc := calibration.NewAccumulator(s.Board)
	for _, v := range s.Views {
		if err := acc.Accept(v); err != nil {
			return nil, err
		}
	}
	return acc.Finalize()
}

// SolverOutput is the exact answer for the scene.
func (s *Scene) SolverOutput() *calibration.SolverOutput {
	out := &calibration.SolverOutput{
		CameraMatrix: mat.DenseCopyOf(s.CameraMatrix),
		Distortion:   append([]float64(nil), s.Distortion...),
	}
	for _, p := range s.Poses {
		out.Rotations = append(out.Rotations, p.Rotation)
		out.Translations = append(out.Translations, p.Translation)
	}
	return out
}

// Solver is a scripted calibration.Solver. It returns Output (or Err) and records every request.
type Solver struct {
	Output *calibration.SolverOutput
	Err    error

	mu       sync.Mutex
	requests []calibration.SolverRequest
}

// Calibrate records the request and returns the scripted answer.
func (s *Solver) Calibrate(ctx context.Context, req calibration.SolverRequest) (*calibration.SolverOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Output, nil
}

// Requests returns every request seen so far.
func (s *Solver) Requests() []calibration.SolverRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]calibration.SolverRequest(nil), s.requests...)
}
