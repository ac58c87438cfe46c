package calibration

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage/transform"
)

// Evaluate reprojects the board template through each view's pose and the camera parameters and
// compares it with the observed points.
//
// For view i with n points, err_i is the L2 norm of the full residual vector (both axes of all
// points) and perView[i] = sqrt(err_i²/n). Note the division by the point count n and not by the
// 2n coordinates; persisted per view errors use this scale. The aggregate is
// sqrt(Σ err_i² / Σ n_i).
func Evaluate(
	corr *Correspondences,
	cameraMatrix mat.Matrix,
	distortion []float64,
	poses []Pose,
) ([]float64, float64, error) {
	if corr == nil || corr.Len() == 0 {
		return nil, 0, NewInsufficientDataError()
	}
	if len(poses) != corr.Len() {
		return nil, 0, errors.Errorf("got %d poses for %d views", len(poses), corr.Len())
	}

	template := corr.Template()
	perView := make([]float64, corr.Len())
	totalSumSq := 0.0
	totalPoints := 0
	for i, pose := range poses {
		projected, err := transform.ProjectPoints(template, pose.Rotation, pose.Translation, cameraMatrix, distortion)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "cannot project view %d", i)
		}
		observed := corr.views[i]
		sumSq := 0.0
		for j, pt := range projected {
			d := pt.Sub(observed[j])
			sumSq += d.X*d.X + d.Y*d.Y
		}
		n := len(template)
		perView[i] = math.Sqrt(sumSq / float64(n))
		totalSumSq += sumSq
		totalPoints += n
	}
	return perView, math.Sqrt(totalSumSq / float64(totalPoints)), nil
}
