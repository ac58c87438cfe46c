package calibration

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned for an unusable board or calibration configuration. Calibration never starts.
	ErrConfiguration = errors.New("invalid calibration configuration")
	// ErrStructuralMismatch is returned when a view does not carry one point per board corner.
	ErrStructuralMismatch = errors.New("view does not match board geometry")
	// ErrInsufficientData is returned when calibration is attempted without any accepted view.
	ErrInsufficientData = errors.New("not enough views to calibrate")
	// ErrSolverFailure is returned when the solver fails or returns parameters outside a sane range.
	ErrSolverFailure = errors.New("calibration solver failed")
)

// NewConfigurationError describes why a configuration was rejected.
func NewConfigurationError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// NewStructuralMismatchError is used when a view has the wrong number of points.
func NewStructuralMismatchError(got, want int) error {
	return errors.Wrapf(ErrStructuralMismatch, "view has %d points, board expects %d", got, want)
}

// NewInsufficientDataError is used when finalizing an accumulator without views.
func NewInsufficientDataError() error {
	return errors.Wrap(ErrInsufficientData, "no views were accepted")
}

// NewSolverFailureError describes a failed or rejected solver run.
func NewSolverFailureError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrSolverFailure, format, args...)
}
