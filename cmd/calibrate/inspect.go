package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcalib/calibration/paramfile"
	"go.viam.com/camcalib/calibration/report"
	"go.viam.com/camcalib/calibration/runlog"
	"go.viam.com/camcalib/config"
)

// ShowAction is the corresponding Action for 'show'.
func ShowAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("show takes exactly one calibration file")
	}
	rec, err := paramfile.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, recordTable(rec))
	return nil
}

// CompareAction is the corresponding Action for 'compare'.
func CompareAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("compare takes exactly two calibration files")
	}
	a, err := paramfile.ReadFile(c.Args().Get(0))
	if err != nil {
		return err
	}
	b, err := paramfile.ReadFile(c.Args().Get(1))
	if err != nil {
		return err
	}
	if paramfile.Equal(a, b) {
		fmt.Fprintln(c.App.Writer, "calibrations match")
		return nil
	}
	fmt.Fprint(c.App.Writer, paramfile.Diff(a, b))
	return errors.New("calibrations differ")
}

// SchemaAction is the corresponding Action for 'schema'.
func SchemaAction(c *cli.Context) error {
	schema, err := config.JobSchema()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s\n", schema)
	return nil
}

// HistoryAction is the corresponding Action for 'history'.
func HistoryAction(c *cli.Context) error {
	history, err := runlog.Open(c.String(dbFlag))
	if err != nil {
		return err
	}
	defer func() {
		//nolint:errcheck
		history.Close()
	}()
	runs, err := history.Recent(c.Context, c.Int(limitFlag))
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, runsTable(runs))
	return nil
}

func recordTable(rec *paramfile.Record) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendRow(table.Row{"calibrated", rec.CalibrationTime.Format(time.RFC3339)})
	t.AppendRow(table.Row{"image", fmt.Sprintf("%dx%d", rec.ImageWidth, rec.ImageHeight)})
	t.AppendRow(table.Row{"board", fmt.Sprintf("%dx%d, %g per square", rec.BoardWidth, rec.BoardHeight, rec.SquareSize)})
	t.AppendRow(table.Row{"flags", fmt.Sprintf("%d (%s)", rec.Flags, strings.TrimPrefix(rec.FlagsDescription, "flags: "))})
	if rec.AspectRatio != nil {
		t.AppendRow(table.Row{"aspect ratio", *rec.AspectRatio})
	}
	t.AppendSeparator()
	for i := 0; i < rec.CameraMatrix.Rows; i++ {
		label := ""
		if i == 0 {
			label = "camera matrix"
		}
		row := rec.CameraMatrix.Data[i*rec.CameraMatrix.Cols : (i+1)*rec.CameraMatrix.Cols]
		t.AppendRow(table.Row{label, formatValues(row)})
	}
	t.AppendRow(table.Row{"distortion", formatValues(rec.DistortionCoefficients.Data)})
	t.AppendRow(table.Row{"avg reprojection error", fmt.Sprintf("%.6g px", rec.AvgReprojectionError)})
	if len(rec.PerViewReprojectionErrors) > 0 {
		if summary, err := report.Summarize(rec.PerViewReprojectionErrors); err == nil {
			t.AppendRow(table.Row{"per view", summary.String()})
		}
	}
	return t.Render() + "\n"
}

func runsTable(runs []*runlog.Run) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Started", "Status", "Board", "Views", "Avg Error", "Output", "Error"})
	for _, run := range runs {
		avg := "-"
		if run.AvgReprojectionError != nil {
			avg = fmt.Sprintf("%.4g", *run.AvgReprojectionError)
		}
		t.AppendRow(table.Row{
			run.ID.String()[:8],
			run.StartedAt.Local().Format(time.DateTime),
			string(run.Status),
			fmt.Sprintf("%dx%d", run.BoardWidth, run.BoardHeight),
			fmt.Sprintf("%d/%d", run.ViewsAccepted, run.ViewsOffered),
			avg,
			run.OutputPath,
			run.Error,
		})
	}
	return t.Render() + "\n"
}

func formatValues(values []float64) string {
	return strings.Join(lo.Map(values, func(v float64, _ int) string {
		return fmt.Sprintf("%.6g", v)
	}), "  ")
}
