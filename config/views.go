package config

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/calibration"
)

// ViewsFile is the output of an external corner detector for a whole capture session. A null
// view marks an image where the board was not found.
type ViewsFile struct {
	ImageWidth  int            `json:"image_width"`
	ImageHeight int            `json:"image_height"`
	Views       [][][2]float64 `json:"views"`
}

// ReadViewsFile reads every view of a capture session in file order.
func ReadViewsFile(path string) ([]calibration.Observation, error) {
	//nolint:gosec
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read views file %q", path)
	}
	var vf ViewsFile
	if err := json.Unmarshal(buf, &vf); err != nil {
		return nil, errors.Wrapf(err, "cannot parse views file %q", path)
	}
	size := image.Point{X: vf.ImageWidth, Y: vf.ImageHeight}
	observations := make([]calibration.Observation, len(vf.Views))
	for i, v := range vf.Views {
		observations[i] = calibration.Observation{
			Source:    fmt.Sprintf("%s#%d", filepath.Base(path), i),
			ImageSize: size,
			Points:    toView(v),
		}
	}
	return observations, nil
}

// CornerFile is the detector output for a single image.
type CornerFile struct {
	ImageWidth  int          `json:"image_width"`
	ImageHeight int          `json:"image_height"`
	Found       bool         `json:"found"`
	Points      [][2]float64 `json:"points"`
}

// CornerFileDetector is a calibration.Detector whose sources are corner files written by an
// external detector, one per image.
type CornerFileDetector struct{}

var _ calibration.Detector = CornerFileDetector{}

// Detect reads one corner file.
func (CornerFileDetector) Detect(ctx context.Context, source string) (calibration.Observation, error) {
	if err := ctx.Err(); err != nil {
		return calibration.Observation{}, err
	}
	//nolint:gosec
	buf, err := os.ReadFile(source)
	if err != nil {
		return calibration.Observation{}, err
	}
	var cf CornerFile
	if err := json.Unmarshal(buf, &cf); err != nil {
		return calibration.Observation{}, errors.Wrap(err, "cannot parse corner file")
	}
	obs := calibration.Observation{
		Source:    source,
		ImageSize: image.Point{X: cf.ImageWidth, Y: cf.ImageHeight},
	}
	if cf.Found {
		obs.Points = toView(cf.Points)
		if obs.Points == nil {
			obs.Points = calibration.View{}
		}
	}
	return obs, nil
}

// CornerFiles returns the files matching the glob in lexical order.
func CornerFiles(glob string) ([]string, error) {
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, errors.Wrapf(err, "bad corners_glob %q", glob)
	}
	if len(matches) == 0 {
		return nil, errors.Errorf("no corner files match %q", glob)
	}
	sort.Strings(matches)
	return matches, nil
}

// Observations loads every observation the job refers to. Views without an image size get the
// job's image size.
func (job *Job) Observations(ctx context.Context) ([]calibration.Observation, error) {
	var (
		observations []calibration.Observation
		err          error
	)
	if job.ViewsFile != "" {
		observations, err = ReadViewsFile(job.ViewsFile)
	} else {
		var sources []string
		if sources, err = CornerFiles(job.CornersGlob); err != nil {
			return nil, err
		}
		observations, err = calibration.DetectViews(ctx, CornerFileDetector{}, sources, job.ParallelismOrDefault())
	}
	if err != nil {
		return nil, err
	}
	fallback := image.Point{X: job.Image.Width, Y: job.Image.Height}
	for i := range observations {
		if observations[i].ImageSize == (image.Point{}) {
			observations[i].ImageSize = fallback
		}
	}
	return observations, nil
}

func toView(pts [][2]float64) calibration.View {
	if pts == nil {
		return nil
	}
	v := make(calibration.View, len(pts))
	for i, p := range pts {
		v[i] = r2.Point{X: p[0], Y: p[1]}
	}
	return v
}
