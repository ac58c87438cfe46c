// Package config reads calibration job files and the detector output they point at.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/calibration/paramfile"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
)

// DefaultParallelism is the number of corner files read at once when a job does not say.
const DefaultParallelism = 4

// BoardConfig describes the calibration target.
type BoardConfig struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	SquareSize float64 `json:"square_size"`
}

// Validate ensures all parts of the config are valid.
func (b *BoardConfig) Validate(path string) error {
	var errs error
	if b.Width <= 0 {
		errs = multierr.Append(errs, NewFieldRequiredError(path, "width"))
	}
	if b.Height <= 0 {
		errs = multierr.Append(errs, NewFieldRequiredError(path, "height"))
	}
	if !(b.SquareSize > 0) {
		errs = multierr.Append(errs, NewFieldRequiredError(path, "square_size"))
	}
	return errs
}

// ImageConfig is the size of the calibration images. It fills in the size of views that do not carry one.
type ImageConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Job is one calibration job: what was observed, with which options, and where results go.
type Job struct {
	Board BoardConfig `json:"board"`
	Image ImageConfig `json:"image"`

	// FixAspectRatio holds fx/fy at the given value when set.
	FixAspectRatio    *float64                           `json:"fix_aspect_ratio,omitempty"`
	ZeroTangentDist   bool                               `json:"zero_tangent_dist"`
	FixPrincipalPoint bool                               `json:"fix_principal_point"`
	IntrinsicGuess    *transform.PinholeCameraIntrinsics `json:"intrinsic_guess,omitempty"`

	// ViewsFile holds every view in one file. CornersGlob matches one detector output file per
	// image instead. Exactly one of them is set.
	ViewsFile   string `json:"views_file,omitempty"`
	CornersGlob string `json:"corners_glob,omitempty"`
	Parallelism int    `json:"parallelism,omitempty"`
	// MaxViews calibrates from the first MaxViews usable views only. Zero uses them all.
	MaxViews int `json:"max_views,omitempty"`

	Output          string `json:"output"`
	WritePoints     bool   `json:"write_points"`
	WriteExtrinsics bool   `json:"write_extrinsics"`

	RunLog     string `json:"runlog,omitempty"`
	ReportPlot string `json:"report_plot,omitempty"`
	LogLevel   string `json:"log_level,omitempty"`
}

// Read reads a job from the given file, expanding environment variables first. Relative paths
// in the job are taken relative to the file's directory.
func Read(filePath string) (*Job, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read job file %q", filePath)
	}
	job, err := FromBytes(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "in job file %q", filePath)
	}
	job.resolvePaths(filepath.Dir(filePath))
	return job, nil
}

// FromBytes parses and validates a job without touching the file system.
func FromBytes(buf []byte) (*Job, error) {
	var job Job
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		return nil, errors.Wrap(err, "cannot parse job")
	}
	if err := job.Validate("job"); err != nil {
		return nil, err
	}
	return &job, nil
}

func (job *Job) resolvePaths(dir string) {
	for _, p := range []*string{&job.ViewsFile, &job.CornersGlob, &job.Output, &job.RunLog, &job.ReportPlot} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate ensures all parts of the job are valid.
func (job *Job) Validate(path string) error {
	errs := job.Board.Validate(fmt.Sprintf("%s.board", path))
	if job.Image.Width < 0 || job.Image.Height < 0 || (job.Image.Width == 0) != (job.Image.Height == 0) {
		errs = multierr.Append(errs, NewValidationError(fmt.Sprintf("%s.image", path),
			errors.Errorf("width and height must both be positive or both be left out, got %dx%d",
				job.Image.Width, job.Image.Height)))
	}
	if job.FixAspectRatio != nil && !(*job.FixAspectRatio > 0) {
		errs = multierr.Append(errs, NewValidationError(path,
			errors.Errorf("fix_aspect_ratio must be positive, got %v", *job.FixAspectRatio)))
	}
	if job.IntrinsicGuess != nil {
		if err := job.IntrinsicGuess.CheckValid(); err != nil {
			errs = multierr.Append(errs, NewValidationError(fmt.Sprintf("%s.intrinsic_guess", path), err))
		}
	}
	switch {
	case job.ViewsFile == "" && job.CornersGlob == "":
		errs = multierr.Append(errs, NewFieldRequiredError(path, "views_file"))
	case job.ViewsFile != "" && job.CornersGlob != "":
		errs = multierr.Append(errs, NewValidationError(path, errors.New("only one of views_file and corners_glob may be set")))
	}
	if job.Parallelism < 0 {
		errs = multierr.Append(errs, NewValidationError(path, errors.Errorf("parallelism must not be negative, got %d", job.Parallelism)))
	}
	if job.MaxViews < 0 {
		errs = multierr.Append(errs, NewValidationError(path, errors.Errorf("max_views must not be negative, got %d", job.MaxViews)))
	}
	if job.Output == "" {
		errs = multierr.Append(errs, NewFieldRequiredError(path, "output"))
	} else if _, err := paramfile.FormatFromPath(job.Output); err != nil {
		errs = multierr.Append(errs, NewValidationError(fmt.Sprintf("%s.output", path), err))
	}
	if job.LogLevel != "" {
		if _, err := logging.LevelFromString(job.LogLevel); err != nil {
			errs = multierr.Append(errs, NewValidationError(fmt.Sprintf("%s.log_level", path), err))
		}
	}
	if job.ReportPlot != "" {
		switch strings.ToLower(filepath.Ext(job.ReportPlot)) {
		case ".png", ".svg", ".pdf", ".jpg", ".jpeg":
		default:
			errs = multierr.Append(errs, NewValidationError(fmt.Sprintf("%s.report_plot", path),
				errors.Errorf("unsupported plot format %q", filepath.Ext(job.ReportPlot))))
		}
	}
	return errs
}

// JobSchema returns the JSON schema of job files.
func JobSchema() ([]byte, error) {
	return json.MarshalIndent(jsonschema.Reflect(&Job{}), "", "  ")
}

// BoardGeometry returns the job's board.
func (job *Job) BoardGeometry() (*calibration.BoardGeometry, error) {
	return calibration.NewBoardGeometry(job.Board.Width, job.Board.Height, job.Board.SquareSize)
}

// Configuration returns the solver options of the job.
func (job *Job) Configuration() calibration.Configuration {
	cfg := calibration.Configuration{
		ZeroTangentialDistortion: job.ZeroTangentDist,
		FixPrincipalPoint:        job.FixPrincipalPoint,
	}
	if job.FixAspectRatio != nil {
		cfg.FixAspectRatio = true
		cfg.AspectRatio = *job.FixAspectRatio
	}
	if job.IntrinsicGuess != nil {
		cfg.UseIntrinsicGuess = true
		cfg.IntrinsicGuess = job.IntrinsicGuess
	}
	return cfg
}

// WriteOptions returns which optional sections go into the output record.
func (job *Job) WriteOptions() paramfile.WriteOptions {
	return paramfile.WriteOptions{Extrinsics: job.WriteExtrinsics, Points: job.WritePoints}
}

// Level returns the job's log level, INFO when unset.
func (job *Job) Level() logging.Level {
	if job.LogLevel == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(job.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// ParallelismOrDefault returns how many corner files to read at once.
func (job *Job) ParallelismOrDefault() int {
	if job.Parallelism == 0 {
		return DefaultParallelism
	}
	return job.Parallelism
}
