package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcalib/calibration/paramfile"
)

// UndistortAction is the corresponding Action for 'undistort'.
func UndistortAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("undistort takes a calibration file and at least one X,Y pixel")
	}
	rec, err := paramfile.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	model, err := rec.CameraModel()
	if err != nil {
		return err
	}
	if err := model.CheckValid(); err != nil {
		return err
	}
	distortionMap := model.DistortionMap()

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	if c.Bool(distortFlag) {
		t.AppendHeader(table.Row{"Ideal", "Distorted"})
	} else {
		t.AppendHeader(table.Row{"Distorted", "Ideal"})
	}
	for _, arg := range c.Args().Tail() {
		pt, err := parsePixel(arg)
		if err != nil {
			return err
		}
		var mapped r2.Point
		if c.Bool(distortFlag) {
			mapped.X, mapped.Y = distortionMap(pt.X, pt.Y)
		} else if mapped, err = model.UndistortPoint(pt); err != nil {
			return err
		}
		t.AppendRow(table.Row{formatPixel(pt), formatPixel(mapped)})
	}
	fmt.Fprint(c.App.Writer, t.Render()+"\n")
	return nil
}

func parsePixel(s string) (r2.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return r2.Point{}, errors.Errorf("pixel %q is not X,Y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return r2.Point{}, errors.Wrapf(err, "pixel %q", s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return r2.Point{}, errors.Wrapf(err, "pixel %q", s)
	}
	return r2.Point{X: x, Y: y}, nil
}

func formatPixel(pt r2.Point) string {
	return fmt.Sprintf("%.4f,%.4f", pt.X, pt.Y)
}
