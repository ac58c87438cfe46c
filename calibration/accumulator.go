package calibration

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// View is one accepted observation of the board: one pixel per corner, in Template3D order.
type View []r2.Point

// Accumulator collects views of one board until Finalize is called.
type Accumulator struct {
	board *BoardGeometry
	views []View
}

// NewAccumulator returns an empty accumulator for the board.
func NewAccumulator(board *BoardGeometry) *Accumulator {
	return &Accumulator{board: board}
}

// Accept stores a copy of the view. A view whose length is not the board's point count is
// rejected with a structural mismatch error and leaves the accumulator unchanged.
func (a *Accumulator) Accept(view View) error {
	if len(view) != a.board.PointCount() {
		return NewStructuralMismatchError(len(view), a.board.PointCount())
	}
	stored := make(View, len(view))
	copy(stored, view)
	a.views = append(a.views, stored)
	return nil
}

// Len returns the number of accepted views.
func (a *Accumulator) Len() int {
	return len(a.views)
}

// Finalize pairs every accepted view with the board template. It fails when no view was accepted.
// The accumulator can keep accepting views afterwards; the returned Correspondences does not see them.
func (a *Accumulator) Finalize() (*Correspondences, error) {
	if len(a.views) == 0 {
		return nil, NewInsufficientDataError()
	}
	views := make([]View, len(a.views))
	copy(views, a.views)
	return &Correspondences{
		board:    a.board,
		template: a.board.Template3D(),
		views:    views,
	}, nil
}

// Correspondences is the finalized, read-only set of views handed to the solver, the evaluator
// and the serializer. Every view shares the same rigid board template.
type Correspondences struct {
	board    *BoardGeometry
	template []r3.Vector
	views    []View
}

// Board returns the board the views were taken of.
func (c *Correspondences) Board() *BoardGeometry {
	return c.board
}

// Len returns the number of views.
func (c *Correspondences) Len() int {
	return len(c.views)
}

// PointsPerView returns the number of correspondences in each view.
func (c *Correspondences) PointsPerView() int {
	return len(c.template)
}

// ObjectPoints returns one copy of the board template per view.
func (c *Correspondences) ObjectPoints() [][]r3.Vector {
	out := make([][]r3.Vector, len(c.views))
	for i := range c.views {
		out[i] = c.Template()
	}
	return out
}

// Template returns a copy of the board template.
func (c *Correspondences) Template() []r3.Vector {
	tmpl := make([]r3.Vector, len(c.template))
	copy(tmpl, c.template)
	return tmpl
}

// ImagePoints returns a copy of the observed points, one slice per view.
func (c *Correspondences) ImagePoints() [][]r2.Point {
	out := make([][]r2.Point, len(c.views))
	for i := range c.views {
		out[i] = c.View(i)
	}
	return out
}

// Views returns a copy of every view.
func (c *Correspondences) Views() []View {
	out := make([]View, len(c.views))
	for i := range c.views {
		out[i] = c.View(i)
	}
	return out
}

// View returns a copy of the i'th view.
func (c *Correspondences) View(i int) View {
	v := make(View, len(c.views[i]))
	copy(v, c.views[i])
	return v
}
