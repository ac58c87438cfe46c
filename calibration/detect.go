package calibration

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Observation is the outcome of looking for the board in one image.
type Observation struct {
	// Source identifies the image, e.g. its file name.
	Source string
	// ImageSize is the size of the image the points were found in.
	ImageSize image.Point
	// Points is nil when the board was not found.
	Points View
}

// Found reports whether the board was detected.
func (o Observation) Found() bool {
	return o.Points != nil
}

// Detector locates board corners in one image. Implementations must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, source string) (Observation, error)
}

// DetectViews runs the detector over every source with at most parallelism concurrent calls and
// returns the observations in source order. The first detector error cancels the remaining work.
func DetectViews(ctx context.Context, detector Detector, sources []string, parallelism int) ([]Observation, error) {
	observations := make([]Observation, len(sources))
	errs, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		errs.SetLimit(parallelism)
	}
	for i, source := range sources {
		errs.Go(func() error {
			obs, err := detector.Detect(ctx, source)
			if err != nil {
				return errors.Wrapf(err, "cannot detect board in %q", source)
			}
			if obs.Source == "" {
				obs.Source = source
			}
			observations[i] = obs
			return nil
		})
	}
	if err := errs.Wait(); err != nil {
		return nil, err
	}
	return observations, nil
}
