// Package calibration assembles board correspondences across views, runs a camera calibration
// solver once over them and measures the reprojection error of the result.
package calibration

import (
	"github.com/golang/geo/r3"
)

// BoardGeometry describes a planar chessboard target by its inner corner counts and the
// side length of one square. It is immutable once constructed.
type BoardGeometry struct {
	cornersWide int
	cornersHigh int
	squareSize  float64
}

// NewBoardGeometry returns a board with the given inner corner counts and square size.
// The square size is in arbitrary units; calibrated translations come out in the same unit.
func NewBoardGeometry(cornersWide, cornersHigh int, squareSize float64) (*BoardGeometry, error) {
	if cornersWide <= 0 {
		return nil, NewConfigurationError("board width must be positive, got %d", cornersWide)
	}
	if cornersHigh <= 0 {
		return nil, NewConfigurationError("board height must be positive, got %d", cornersHigh)
	}
	if !(squareSize > 0) {
		return nil, NewConfigurationError("square size must be positive, got %v", squareSize)
	}
	return &BoardGeometry{cornersWide: cornersWide, cornersHigh: cornersHigh, squareSize: squareSize}, nil
}

// Width returns the number of inner corners per row.
func (b *BoardGeometry) Width() int {
	return b.cornersWide
}

// Height returns the number of inner corners per column.
func (b *BoardGeometry) Height() int {
	return b.cornersHigh
}

// SquareSize returns the side length of one square.
func (b *BoardGeometry) SquareSize() float64 {
	return b.squareSize
}

// PointCount returns the number of corners a view of this board must carry.
func (b *BoardGeometry) PointCount() int {
	return b.cornersWide * b.cornersHigh
}

// Template3D returns the board corners in the board frame, row-major: for row i and column j the
// point is (j*squareSize, i*squareSize, 0). Every call returns a fresh slice.
func (b *BoardGeometry) Template3D() []r3.Vector {
	corners := make([]r3.Vector, 0, b.PointCount())
	for i := 0; i < b.cornersHigh; i++ {
		for j := 0; j < b.cornersWide; j++ {
			corners = append(corners, r3.Vector{
				X: float64(j) * b.squareSize,
				Y: float64(i) * b.squareSize,
				Z: 0,
			})
		}
	}
	return corners
}
