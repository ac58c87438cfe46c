package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix used to transform points of one plane to another, here the
// calibration board plane to the image plane.
type Homography struct {
	matrix *mat.Dense
}

// NewHomography creates a homography from 9 row major values.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	data := make([]float64, 9)
	copy(data, vals)
	return &Homography{mat.NewDense(3, 3, data)}, nil
}

// At returns the value of the homography at the given index.
func (h *Homography) At(row, col int) float64 {
	return h.matrix.At(row, col)
}

// Matrix returns a copy of the homography as a dense matrix.
func (h *Homography) Matrix() *mat.Dense {
	return mat.DenseCopyOf(h.matrix)
}

// Apply will transform the given point according to the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// EstimateHomography computes the homography mapping src onto dst with the normalized direct linear
// transform (Multiple View Geometry, Alg 4.2). At least 4 correspondences are needed.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.New("sets of points must have at least 4 elements")
	}
	srcNorm, T1 := normalizePoints(src)
	dstNorm, T2 := normalizePoints(dst)

	m := mat.NewDense(2*len(src), 9, nil)
	for i := range srcNorm {
		x, y := srcNorm[i].X, srcNorm[i].Y
		u, v := dstNorm[i].X, dstNorm[i].Y
		m.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		m.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	mats := performSVD(m)
	if mats == nil {
		return nil, errors.New("failed to factorize homography system")
	}
	// right singular vector of the smallest singular value
	lastColV := mats.V.ColView(8)
	hData := make([]float64, 9)
	for i := range hData {
		hData[i] = lastColV.AtVec(i)
	}
	hNorm := mat.NewDense(3, 3, hData)

	// denormalize: H = T2^-1 @ Hn @ T1
	var T2inv, H mat.Dense
	if err := T2inv.Inverse(T2); err != nil {
		return nil, errors.Wrap(err, "destination points are degenerate")
	}
	H.Mul(&T2inv, hNorm)
	H.Mul(&H, T1)

	scale := H.At(2, 2)
	if math.Abs(scale) < 1e-15 {
		scale = mat.Norm(&H, 2)
	}
	if scale == 0 {
		return nil, errors.New("degenerate homography")
	}
	H.Scale(1/scale, &H)
	return &Homography{&H}, nil
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: centroid at the
// origin, mean distance to it sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	scale := 1.0
	if d > 0 {
		scale = math.Sqrt(2) / d
	}
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U *mat.Dense
	V *mat.Dense
	S []float64
}

// performSVD performs SVD on inputMatrix and returns matrices U, V and the singular values.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil
	}
	u, v := &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	return &matsSVD{u, v, svd.Values(nil)}
}
