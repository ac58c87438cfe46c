package main

import (
	"context"
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/calibration/paramfile"
	"go.viam.com/camcalib/calibration/planar"
	"go.viam.com/camcalib/calibration/report"
	"go.viam.com/camcalib/calibration/runlog"
	"go.viam.com/camcalib/config"
	"go.viam.com/camcalib/logging"
)

// RunAction is the corresponding Action for 'run'.
func RunAction(c *cli.Context, clk clock.Clock) error {
	job, err := config.Read(c.String(configFlag))
	if err != nil {
		return err
	}
	logger := logging.NewLogger("calibrate")
	logger.SetLevel(job.Level())
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	}
	logging.ReplaceGlobal(logger)
	defer func() {
		//nolint:errcheck
		logger.Sync()
	}()
	return runJob(c.Context, job, logger, c.App.Writer, clk)
}

// runJob calibrates from the job's observations and saves the result. Nothing is written to the
// job's output when calibration fails. When the job has a run log, every attempt is recorded in it.
func runJob(ctx context.Context, job *config.Job, logger logging.Logger, out io.Writer, clk clock.Clock) (err error) {
	board, err := job.BoardGeometry()
	if err != nil {
		return err
	}
	run := runlog.NewRun(board, clk.Now())
	run.OutputPath = job.Output
	run.Flags = job.Configuration().EffectiveFlags()

	if job.RunLog != "" {
		history, openErr := runlog.Open(job.RunLog)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if err != nil {
				run.Failed(err, clk.Now())
			}
			err = multierr.Combine(err, history.Record(context.WithoutCancel(ctx), run), history.Close())
		}()
	}

	observations, err := job.Observations(ctx)
	if err != nil {
		return err
	}
	run.ViewsOffered = len(observations)

	pipeline := &calibration.Pipeline{
		Board:    board,
		Config:   job.Configuration(),
		Solver:   planar.NewSolver(logger.Sublogger("planar")),
		Logger:   logger,
		MaxViews: job.MaxViews,
	}
	res, corr, err := pipeline.Run(ctx, observations)
	if err != nil {
		return err
	}
	rec, err := paramfile.NewRecord(res, corr, job.WriteOptions(), clk.Now())
	if err != nil {
		return err
	}
	if err := paramfile.WriteFile(job.Output, rec); err != nil {
		return errors.Wrap(err, "cannot save calibration")
	}
	run.Succeeded(res, corr, clk.Now())
	logger.Infow("calibration saved", "path", job.Output, "run", run.ID)

	if summary, err := report.Summarize(res.PerViewErrors); err == nil {
		fmt.Fprintf(out, "%s\n", summary)
		if len(summary.Outliers) > 0 {
			logger.Warnw("some views reproject much worse than the rest", "views", summary.Outliers)
		}
	}
	if job.ReportPlot != "" {
		if err := report.PlotPerViewErrors(res.PerViewErrors, res.AverageError, job.ReportPlot); err != nil {
			logger.Warnw("cannot plot reprojection errors", "path", job.ReportPlot, "error", err)
		}
	}
	fmt.Fprintf(out, "saved %s (avg reprojection error %.4g px over %d views)\n", job.Output, res.AverageError, corr.Len())
	return nil
}
