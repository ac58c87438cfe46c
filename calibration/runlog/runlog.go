// Package runlog keeps a SQLite history of calibration attempts, successful or not.
package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"go.viam.com/camcalib/calibration"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a run id is not in the log.
var ErrNotFound = errors.New("calibration run not found")

// Status is the outcome of a run.
type Status string

const (
	// StatusSucceeded marks a run that produced a result.
	StatusSucceeded Status = "succeeded"
	// StatusFailed marks a run that stopped with an error.
	StatusFailed Status = "failed"
)

// Run is one calibration attempt.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status

	BoardWidth    int
	BoardHeight   int
	SquareSize    float64
	ImageWidth    int
	ImageHeight   int
	ViewsOffered  int
	ViewsAccepted int
	Flags         calibration.Flags

	// AvgReprojectionError is nil for failed runs.
	AvgReprojectionError *float64
	OutputPath           string
	Error                string
}

// NewRun starts describing an attempt on the given board.
func NewRun(board *calibration.BoardGeometry, started time.Time) *Run {
	return &Run{
		ID:          uuid.New(),
		StartedAt:   started,
		BoardWidth:  board.Width(),
		BoardHeight: board.Height(),
		SquareSize:  board.SquareSize(),
	}
}

// ImageSize returns the size of the images the run calibrated against.
func (r *Run) ImageSize() image.Point {
	return image.Point{X: r.ImageWidth, Y: r.ImageHeight}
}

// Succeeded fills in the outcome of a successful calibration.
func (r *Run) Succeeded(res *calibration.Result, corr *calibration.Correspondences, finished time.Time) {
	avg := res.AverageError
	r.Status = StatusSucceeded
	r.FinishedAt = finished
	r.ImageWidth, r.ImageHeight = res.ImageSize.X, res.ImageSize.Y
	r.ViewsAccepted = corr.Len()
	r.Flags = res.Flags
	r.AvgReprojectionError = &avg
	r.Error = ""
}

// Failed records why the attempt stopped.
func (r *Run) Failed(err error, finished time.Time) {
	r.Status = StatusFailed
	r.FinishedAt = finished
	r.AvgReprojectionError = nil
	if err != nil {
		r.Error = err.Error()
	}
}

// Log is an open run history.
type Log struct {
	db *sql.DB
}

// Open opens or creates the history at path and makes sure its schema exists.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open run log")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		//nolint:errcheck
		db.Close()
		return nil, errors.Wrap(err, "cannot initialize run log schema")
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record stores the run, assigning an id when it has none.
func (l *Log) Record(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status != StatusSucceeded && run.Status != StatusFailed {
		return errors.Errorf("cannot record run with status %q", run.Status)
	}
	var avg sql.NullFloat64
	if run.AvgReprojectionError != nil {
		avg = sql.NullFloat64{Float64: *run.AvgReprojectionError, Valid: true}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO calibration_runs (
			run_id, started_at, finished_at, status,
			board_width, board_height, square_size, image_width, image_height,
			views_offered, views_accepted, flags, avg_reprojection_error, output_path, error_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.StartedAt.UTC().UnixNano(), run.FinishedAt.UTC().UnixNano(), string(run.Status),
		run.BoardWidth, run.BoardHeight, run.SquareSize, run.ImageWidth, run.ImageHeight,
		run.ViewsOffered, run.ViewsAccepted, int(run.Flags), avg, run.OutputPath, run.Error,
	)
	if err != nil {
		return errors.Wrapf(err, "cannot record run %s", run.ID)
	}
	return nil
}

const selectRuns = `
	SELECT run_id, started_at, finished_at, status,
		board_width, board_height, square_size, image_width, image_height,
		views_offered, views_accepted, flags, avg_reprojection_error, output_path, error_text
	FROM calibration_runs`

// Get returns the run with the given id.
func (l *Log) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	rows, err := l.db.QueryContext(ctx, selectRuns+` WHERE run_id = ?`, id.String())
	if err != nil {
		return nil, errors.Wrap(err, "cannot query run log")
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "run %s", id)
	}
	return runs[0], nil
}

// Recent returns up to limit runs, newest first. A non-positive limit returns every run.
func (l *Log) Recent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "cannot query run log")
	}
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	//nolint:errcheck
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		var (
			run               Run
			id, status        string
			started, finished int64
			flags             int
			avg               sql.NullFloat64
		)
		if err := rows.Scan(&id, &started, &finished, &status,
			&run.BoardWidth, &run.BoardHeight, &run.SquareSize, &run.ImageWidth, &run.ImageHeight,
			&run.ViewsOffered, &run.ViewsAccepted, &flags, &avg, &run.OutputPath, &run.Error,
		); err != nil {
			return nil, errors.Wrap(err, "cannot read run")
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid run id %q", id)
		}
		run.ID = parsed
		run.Status = Status(status)
		run.StartedAt = time.Unix(0, started).UTC()
		run.FinishedAt = time.Unix(0, finished).UTC()
		run.Flags = calibration.Flags(flags)
		if avg.Valid {
			v := avg.Float64
			run.AvgReprojectionError = &v
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "cannot read run log")
	}
	return runs, nil
}
