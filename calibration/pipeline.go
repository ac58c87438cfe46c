package calibration

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"go.viam.com/camcalib/logging"
)

// AcceptAll offers every found observation to the accumulator, in order, until limit views have
// been accepted. A non-positive limit accepts every view. Views with the wrong number of points
// are logged and dropped; any other error aborts. It returns the number of accepted views.
func (a *Accumulator) AcceptAll(observations []Observation, limit int, logger logging.Logger) (int, error) {
	accepted := 0
	for i, obs := range observations {
		if limit > 0 && accepted == limit {
			logger.Infow("view limit reached, ignoring remaining observations",
				"limit", limit, "ignored", len(observations)-i)
			break
		}
		if !obs.Found() {
			logger.Debugw("board not found, skipping", "source", obs.Source)
			continue
		}
		if err := a.Accept(obs.Points); err != nil {
			if errors.Is(err, ErrStructuralMismatch) {
				logger.Warnw("dropping view", "source", obs.Source, "error", err)
				continue
			}
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

// Pipeline is one calibration job: a board, the options and the solver to run.
type Pipeline struct {
	Board  *BoardGeometry
	Config Configuration
	Solver Solver
	Logger logging.Logger
	// MaxViews calibrates from the first MaxViews accepted views only. Zero uses every view.
	MaxViews int
}

// Run accumulates the observations, finalizes them and calibrates. The image size is taken from
// the last observation that carries one; sizes are not cross-checked between views.
// The finalized correspondences are returned alongside the result for serialization.
func (p *Pipeline) Run(ctx context.Context, observations []Observation) (*Result, *Correspondences, error) {
	if p.Board == nil {
		return nil, nil, NewConfigurationError("no board geometry")
	}
	if p.Solver == nil {
		return nil, nil, NewConfigurationError("no solver")
	}
	if p.MaxViews < 0 {
		return nil, nil, NewConfigurationError("view limit must not be negative, got %d", p.MaxViews)
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.Global()
	}

	var imageSize image.Point
	for _, obs := range observations {
		if obs.ImageSize != (image.Point{}) {
			imageSize = obs.ImageSize
		}
	}

	acc := NewAccumulator(p.Board)
	accepted, err := acc.AcceptAll(observations, p.MaxViews, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Infow("views accepted", "accepted", accepted, "observations", len(observations))

	corr, err := acc.Finalize()
	if err != nil {
		return nil, nil, err
	}
	res, err := Solve(ctx, p.Solver, corr, imageSize, p.Config, logger)
	if err != nil {
		return nil, corr, err
	}
	logger.Infow("calibration succeeded", "avg_reprojection_error", res.AverageError)
	return res, corr, nil
}
