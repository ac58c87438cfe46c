package planar

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// refine minimizes the reprojection error over the free parameters with BFGS and returns the
// better of the initial estimate and the optimizer's answer.
func (s *Solver) refine(p *problem) []float64 {
	p.initScale()

	x0 := p.pack(p.params)
	best := append([]float64(nil), p.params...)
	bestF := p.objective(x0)
	if len(p.free) == 0 {
		return best
	}

	prob := optimize.Problem{
		Func: p.objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, p.objective, x, &fd.Settings{Formula: fd.Central})
		},
	}
	maxIterations := s.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-12,
		MajorIterations:   maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-20,
			Relative:   1e-12,
			Iterations: 20,
		},
	}

	result, err := optimize.Minimize(prob, x0, settings, &optimize.BFGS{})
	if err != nil {
		s.logger.Warnw("refinement stopped early", "error", err)
	}
	if result == nil || !allFinite(result.X) {
		return best
	}
	s.logger.Debugw("refinement finished",
		"status", result.Status.String(),
		"iterations", result.Stats.MajorIterations,
		"func_evaluations", result.Stats.FuncEvaluations,
		"initial", bestF,
		"final", result.F)
	if result.F < bestF {
		best = p.unpack(result.X)
	}
	return best
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
