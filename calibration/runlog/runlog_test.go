package runlog

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/calibration/calibtest"
	"go.viam.com/camcalib/logging"
)

func openLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { test.That(t, l.Close(), test.ShouldBeNil) })
	return l
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	l := openLog(t)

	scene, err := calibtest.NewScene()
	test.That(t, err, test.ShouldBeNil)
	corr, err := scene.Correspondences()
	test.That(t, err, test.ShouldBeNil)
	res, err := calibration.Solve(ctx, &calibtest.Solver{Output: scene.SolverOutput()}, corr, scene.ImageSize,
		calibration.Configuration{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	started := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	ok := NewRun(scene.Board, started)
	ok.ViewsOffered = 4
	ok.OutputPath = "camera.yml"
	ok.Succeeded(res, corr, started.Add(time.Second))
	test.That(t, l.Record(ctx, ok), test.ShouldBeNil)

	got, err := l.Get(ctx, ok.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, ok)
	test.That(t, got.Status, test.ShouldEqual, StatusSucceeded)
	test.That(t, got.ImageWidth, test.ShouldEqual, 640)
	test.That(t, got.ViewsAccepted, test.ShouldEqual, 3)
	test.That(t, *got.AvgReprojectionError, test.ShouldAlmostEqual, 0, 1e-9)

	failed := NewRun(scene.Board, started.Add(time.Minute))
	failed.ViewsOffered = 2
	failed.Failed(errors.Wrap(calibration.ErrSolverFailure, "camera matrix entry (0,0) = NaN is out of range"), started.Add(2*time.Minute))
	test.That(t, l.Record(ctx, failed), test.ShouldBeNil)

	got, err = l.Get(ctx, failed.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Status, test.ShouldEqual, StatusFailed)
	test.That(t, got.AvgReprojectionError, test.ShouldBeNil)
	test.That(t, got.Error, test.ShouldContainSubstring, "NaN")

	_, err = l.Get(ctx, uuid.New())
	test.That(t, err, test.ShouldWrap, ErrNotFound)

	t.Run("duplicate id", func(t *testing.T) {
		test.That(t, l.Record(ctx, ok), test.ShouldNotBeNil)
	})

	t.Run("unknown status", func(t *testing.T) {
		test.That(t, l.Record(ctx, &Run{}), test.ShouldNotBeNil)
	})
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	l := openLog(t)
	board, err := calibration.NewBoardGeometry(9, 6, 0.03)
	test.That(t, err, test.ShouldBeNil)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		run := NewRun(board, base.Add(time.Duration(i)*time.Hour))
		run.ImageWidth, run.ImageHeight = 1280, 720
		run.Failed(calibration.NewInsufficientDataError(), run.StartedAt.Add(time.Second))
		test.That(t, l.Record(ctx, run), test.ShouldBeNil)
		ids = append(ids, run.ID)
	}

	runs, err := l.Recent(ctx, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, runs, test.ShouldHaveLength, 3)
	test.That(t, runs[0].ID, test.ShouldEqual, ids[4])
	test.That(t, runs[2].ID, test.ShouldEqual, ids[2])
	test.That(t, runs[0].BoardWidth, test.ShouldEqual, 9)
	test.That(t, runs[0].ImageWidth, test.ShouldEqual, 1280)

	all, err := l.Recent(ctx, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, all, test.ShouldHaveLength, 5)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	board, err := calibration.NewBoardGeometry(4, 5, 0.025)
	test.That(t, err, test.ShouldBeNil)

	l, err := Open(path)
	test.That(t, err, test.ShouldBeNil)
	run := NewRun(board, time.Now())
	run.ImageWidth, run.ImageHeight = 640, 480
	run.Failed(nil, time.Now())
	test.That(t, l.Record(ctx, run), test.ShouldBeNil)
	test.That(t, l.Close(), test.ShouldBeNil)

	l, err = Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, l.Close(), test.ShouldBeNil) }()
	runs, err := l.Recent(ctx, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, runs, test.ShouldHaveLength, 1)
	test.That(t, runs[0].ImageSize(), test.ShouldResemble, image.Point{X: 640, Y: 480})
}
