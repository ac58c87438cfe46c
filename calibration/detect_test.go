package calibration_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/camcalib/calibration"
)

type mapDetector struct {
	views    map[string]calibration.View
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (d *mapDetector) Detect(ctx context.Context, source string) (calibration.Observation, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if source == "broken.png" {
		return calibration.Observation{}, errors.New("cannot decode")
	}
	return calibration.Observation{Points: d.views[source]}, nil
}

func TestDetectViews(t *testing.T) {
	det := &mapDetector{views: map[string]calibration.View{
		"a.png": viewOf(20),
		"c.png": viewOf(19),
		"d.png": viewOf(20),
	}}

	obs, err := calibration.DetectViews(context.Background(), det, []string{"a.png", "b.png", "c.png", "d.png"}, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, obs, test.ShouldHaveLength, 4)
	test.That(t, obs[0].Source, test.ShouldEqual, "a.png")
	test.That(t, obs[0].Found(), test.ShouldBeTrue)
	test.That(t, obs[1].Source, test.ShouldEqual, "b.png")
	test.That(t, obs[1].Found(), test.ShouldBeFalse)
	test.That(t, obs[2].Points, test.ShouldHaveLength, 19)
	test.That(t, obs[3].Source, test.ShouldEqual, "d.png")
	test.That(t, int(det.peak.Load()), test.ShouldBeLessThanOrEqualTo, 2)

	t.Run("detector error", func(t *testing.T) {
		_, err := calibration.DetectViews(context.Background(), det, []string{"a.png", "broken.png"}, 0)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "broken.png")
	})
}
