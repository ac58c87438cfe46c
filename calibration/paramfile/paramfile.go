// Package paramfile reads and writes calibrated camera parameters as JSON or YAML records.
package paramfile

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/rimage/transform"
)

// ErrParse is returned when a record cannot be decoded or is inconsistent.
var ErrParse = errors.New("cannot parse calibration record")

func newParseError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrParse, format, args...)
}

// Format is the on-disk encoding of a record.
type Format string

const (
	// FormatJSON encodes records as indented JSON.
	FormatJSON Format = "json"
	// FormatYAML encodes records as YAML.
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yml", ".yaml":
		return FormatYAML, nil
	default:
		return "", errors.Errorf("cannot tell record format from extension of %q, want .json, .yml or .yaml", path)
	}
}

// Matrix is a dense row-major matrix.
type Matrix struct {
	Rows int       `json:"rows" yaml:"rows"`
	Cols int       `json:"cols" yaml:"cols"`
	Data []float64 `json:"data" yaml:"data,flow"`
}

// PointMatrix is a row-major matrix of 2D points, one row per view.
type PointMatrix struct {
	Rows int          `json:"rows" yaml:"rows"`
	Cols int          `json:"cols" yaml:"cols"`
	Data [][2]float64 `json:"data" yaml:"data"`
}

// Record is the persisted outcome of one successful calibration.
type Record struct {
	CalibrationTime time.Time `json:"calibration_time" yaml:"calibration_time"`
	// NFrames is set when any per view data is present.
	NFrames int `json:"nframes,omitempty" yaml:"nframes,omitempty"`

	ImageWidth  int     `json:"image_width" yaml:"image_width"`
	ImageHeight int     `json:"image_height" yaml:"image_height"`
	BoardWidth  int     `json:"board_width" yaml:"board_width"`
	BoardHeight int     `json:"board_height" yaml:"board_height"`
	SquareSize  float64 `json:"square_size" yaml:"square_size"`
	// AspectRatio is only present when it was held fixed.
	AspectRatio *float64 `json:"aspectRatio,omitempty" yaml:"aspectRatio,omitempty"`

	Flags            calibration.Flags `json:"flags" yaml:"flags"`
	FlagsDescription string            `json:"flags_description" yaml:"flags_description"`

	CameraMatrix           Matrix  `json:"camera_matrix" yaml:"camera_matrix"`
	DistortionCoefficients Matrix  `json:"distortion_coefficients" yaml:"distortion_coefficients"`
	AvgReprojectionError   float64 `json:"avg_reprojection_error" yaml:"avg_reprojection_error"`

	PerViewReprojectionErrors []float64    `json:"per_view_reprojection_errors,omitempty" yaml:"per_view_reprojection_errors,omitempty,flow"`
	ExtrinsicParameters       *Matrix      `json:"extrinsic_parameters,omitempty" yaml:"extrinsic_parameters,omitempty"`
	ImagePoints               *PointMatrix `json:"image_points,omitempty" yaml:"image_points,omitempty"`
}

// WriteOptions selects the optional per view sections of a record.
type WriteOptions struct {
	// Extrinsics adds the per view poses and reprojection errors.
	Extrinsics bool
	// Points adds the observed image points.
	Points bool
}

// NewRecord builds the record for a successful calibration.
func NewRecord(
	res *calibration.Result,
	corr *calibration.Correspondences,
	opts WriteOptions,
	now time.Time,
) (*Record, error) {
	if res == nil || corr == nil {
		return nil, errors.New("a calibration result and its correspondences are required")
	}
	if len(res.Poses) != corr.Len() || len(res.PerViewErrors) != corr.Len() {
		return nil, errors.Errorf("result covers %d views but %d were calibrated", len(res.Poses), corr.Len())
	}
	board := corr.Board()
	rec := &Record{
		CalibrationTime:        now.UTC().Truncate(time.Second),
		ImageWidth:             res.ImageSize.X,
		ImageHeight:            res.ImageSize.Y,
		BoardWidth:             board.Width(),
		BoardHeight:            board.Height(),
		SquareSize:             board.SquareSize(),
		Flags:                  res.Flags,
		FlagsDescription:       res.Flags.Description(),
		CameraMatrix:           Matrix{Rows: 3, Cols: 3, Data: denseData(res.CameraMatrix)},
		DistortionCoefficients: Matrix{Rows: len(res.Distortion), Cols: 1, Data: append([]float64(nil), res.Distortion...)},
		AvgReprojectionError:   res.AverageError,
	}
	if res.Flags.Has(calibration.FlagFixAspectRatio) {
		aspect := res.AspectRatio
		rec.AspectRatio = &aspect
	}
	if opts.Extrinsics {
		rec.PerViewReprojectionErrors = append([]float64(nil), res.PerViewErrors...)
		ext := &Matrix{Rows: len(res.Poses), Cols: 6}
		for _, pose := range res.Poses {
			row := pose.Extrinsics()
			ext.Data = append(ext.Data, row[:]...)
		}
		rec.ExtrinsicParameters = ext
	}
	if opts.Points {
		pts := &PointMatrix{Rows: corr.Len(), Cols: corr.PointsPerView()}
		for _, view := range corr.Views() {
			for _, pt := range view {
				pts.Data = append(pts.Data, [2]float64{pt.X, pt.Y})
			}
		}
		rec.ImagePoints = pts
	}
	if opts.Extrinsics || opts.Points {
		rec.NFrames = corr.Len()
	}
	return rec, nil
}

func denseData(m mat.Matrix) []float64 {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return data
}

// Write encodes the record.
func Write(w io.Writer, rec *Record, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return multierr.Combine(enc.Encode(rec), enc.Close())
	default:
		return errors.Errorf("unknown record format %q", format)
	}
}

// Read decodes and validates a record. The input must hold exactly one record. On any problem it
// returns an error wrapping ErrParse and no record.
func Read(r io.Reader, format Format) (*Record, error) {
	var (
		rec  Record
		next func(v interface{}) error
	)
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		if err := dec.Decode(&rec); err != nil {
			return nil, newParseError("%v", err)
		}
		next = dec.Decode
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&rec); err != nil {
			return nil, newParseError("%v", err)
		}
		next = dec.Decode
	default:
		return nil, errors.Errorf("unknown record format %q", format)
	}
	var trailing interface{}
	if err := next(&trailing); !errors.Is(err, io.EOF) {
		return nil, newParseError("unexpected data after the record")
	}
	if err := rec.Validate(); err != nil {
		return nil, newParseError("%v", err)
	}
	return &rec, nil
}

// WriteFile writes the record to path in the format given by its extension. The record is fully
// encoded before path is touched, and path is replaced atomically, so a failed write leaves any
// existing file as it was.
func WriteFile(path string, rec *Record) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Write(&buf, rec, format); err != nil {
		return errors.Wrap(err, "cannot encode record")
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "cannot create record file")
	}
	defer func() {
		if err != nil {
			//nolint:errcheck
			os.Remove(f.Name())
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return multierr.Combine(errors.Wrap(err, "cannot write record file"), f.Close())
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "cannot write record file")
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return errors.Wrap(err, "cannot write record file")
	}
	return errors.Wrap(os.Rename(f.Name(), path), "cannot replace record file")
}

// ReadFile reads the record at path in the format given by its extension.
func ReadFile(path string) (*Record, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open record file")
	}
	//nolint:errcheck
	defer f.Close()
	return Read(f, format)
}

// Validate checks that every section has the shape the rest of the record implies.
func (rec *Record) Validate() error {
	var errs error
	if rec.ImageWidth <= 0 || rec.ImageHeight <= 0 {
		errs = multierr.Append(errs, errors.Errorf("invalid image size %dx%d", rec.ImageWidth, rec.ImageHeight))
	}
	if rec.BoardWidth <= 0 || rec.BoardHeight <= 0 {
		errs = multierr.Append(errs, errors.Errorf("invalid board size %dx%d", rec.BoardWidth, rec.BoardHeight))
	}
	if !(rec.SquareSize > 0) {
		errs = multierr.Append(errs, errors.Errorf("invalid square size %v", rec.SquareSize))
	}
	if rec.Flags.Has(calibration.FlagFixAspectRatio) && (rec.AspectRatio == nil || !(*rec.AspectRatio > 0)) {
		errs = multierr.Append(errs, errors.New("fixed aspect ratio flag set without a positive aspectRatio"))
	}
	errs = multierr.Append(errs, checkMatrix("camera_matrix", &rec.CameraMatrix, 3, 3))
	errs = multierr.Append(errs, checkMatrix("distortion_coefficients", &rec.DistortionCoefficients,
		transform.BrownConradyParameterCount, 1))
	if !isFinite(rec.AvgReprojectionError) || rec.AvgReprojectionError < 0 {
		errs = multierr.Append(errs, errors.Errorf("invalid avg_reprojection_error %v", rec.AvgReprojectionError))
	}

	hasPerView := rec.PerViewReprojectionErrors != nil || rec.ExtrinsicParameters != nil || rec.ImagePoints != nil
	if rec.NFrames < 0 || (hasPerView && rec.NFrames == 0) {
		errs = multierr.Append(errs, errors.Errorf("invalid nframes %d", rec.NFrames))
	}
	if rec.PerViewReprojectionErrors != nil && len(rec.PerViewReprojectionErrors) != rec.NFrames {
		errs = multierr.Append(errs, errors.Errorf("got %d per view errors for %d frames",
			len(rec.PerViewReprojectionErrors), rec.NFrames))
	}
	for i, e := range rec.PerViewReprojectionErrors {
		if !isFinite(e) || e < 0 {
			errs = multierr.Append(errs, errors.Errorf("invalid per_view_reprojection_errors value %d: %v", i, e))
		}
	}
	if rec.ExtrinsicParameters != nil {
		errs = multierr.Append(errs, checkMatrix("extrinsic_parameters", rec.ExtrinsicParameters, rec.NFrames, 6))
	}
	if rec.ImagePoints != nil {
		pts := rec.ImagePoints
		want := rec.BoardWidth * rec.BoardHeight
		if pts.Rows != rec.NFrames || pts.Cols != want || len(pts.Data) != pts.Rows*pts.Cols {
			errs = multierr.Append(errs, errors.Errorf("image_points is %dx%d with %d points, want %dx%d",
				pts.Rows, pts.Cols, len(pts.Data), rec.NFrames, want))
		}
	}
	return errs
}

func checkMatrix(name string, m *Matrix, rows, cols int) error {
	if m.Rows != rows || m.Cols != cols || len(m.Data) != rows*cols {
		return errors.Errorf("%s is %dx%d with %d values, want %dx%d", name, m.Rows, m.Cols, len(m.Data), rows, cols)
	}
	for i, v := range m.Data {
		if !isFinite(v) {
			return errors.Errorf("%s value %d is %v", name, i, v)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Equal reports whether two records hold the same calibration, ignoring when it was made.
func Equal(a, b *Record) bool {
	return cmp.Equal(a, b, cmpopts.IgnoreFields(Record{}, "CalibrationTime"), cmpopts.EquateEmpty())
}

// Diff describes how two records differ, ignoring when they were made.
func Diff(a, b *Record) string {
	return cmp.Diff(a, b, cmpopts.IgnoreFields(Record{}, "CalibrationTime"), cmpopts.EquateEmpty())
}

// CameraModel returns the recorded intrinsics and distortion as a camera model.
func (rec *Record) CameraModel() (*transform.PinholeCameraModel, error) {
	cameraMatrix := rec.CameraMatrix.Data
	if len(cameraMatrix) != 9 {
		return nil, errors.Errorf("camera matrix has %d values", len(cameraMatrix))
	}
	distortion, err := transform.NewDistorter(transform.BrownConradyDistortionType, rec.DistortionCoefficients.Data)
	if err != nil {
		return nil, err
	}
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  rec.ImageWidth,
			Height: rec.ImageHeight,
			Fx:     cameraMatrix[0],
			Fy:     cameraMatrix[4],
			Ppx:    cameraMatrix[2],
			Ppy:    cameraMatrix[5],
		},
		Distortion: distortion,
	}, nil
}
