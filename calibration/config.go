package calibration

import (
	"math"
	"strings"

	"go.uber.org/multierr"

	"go.viam.com/camcalib/rimage/transform"
)

// Flags is the solver's native option bitmask. Values match the OpenCV calibration flags so that
// persisted records stay comparable with files written by OpenCV-based tools.
type Flags int

const (
	// FlagUseIntrinsicGuess starts the solver from the supplied intrinsics instead of a closed form estimate.
	FlagUseIntrinsicGuess Flags = 0x00001
	// FlagFixAspectRatio holds fx/fy at the ratio of the initial camera matrix.
	FlagFixAspectRatio Flags = 0x00002
	// FlagFixPrincipalPoint holds the principal point at its initial position.
	FlagFixPrincipalPoint Flags = 0x00004
	// FlagZeroTangentDist forces both tangential coefficients to zero.
	FlagZeroTangentDist Flags = 0x00008
	// FlagFixK4 holds distortion coefficient slot 4 at its initial value.
	FlagFixK4 Flags = 0x00800
	// FlagFixK5 holds distortion coefficient slot 5 at its initial value.
	FlagFixK5 Flags = 0x01000

	// PolicyFlags are always added to the user's flags.
	PolicyFlags = FlagFixK4 | FlagFixK5
)

// Has reports whether every bit of f is set.
func (flags Flags) Has(f Flags) bool {
	return flags&f == f
}

// Description returns the human readable form persisted next to the bitmask,
// e.g. "flags: +fix_aspectRatio+zero_tangent_dist+fix_k4+fix_k5".
func (flags Flags) Description() string {
	var sb strings.Builder
	sb.WriteString("flags: ")
	for _, named := range []struct {
		flag Flags
		name string
	}{
		{FlagUseIntrinsicGuess, "+use_intrinsic_guess"},
		{FlagFixAspectRatio, "+fix_aspectRatio"},
		{FlagFixPrincipalPoint, "+fix_principal_point"},
		{FlagZeroTangentDist, "+zero_tangent_dist"},
		{FlagFixK4, "+fix_k4"},
		{FlagFixK5, "+fix_k5"},
	} {
		if flags.Has(named.flag) {
			sb.WriteString(named.name)
		}
	}
	return sb.String()
}

// Configuration holds the user facing calibration options.
type Configuration struct {
	// FixAspectRatio holds fx/fy at AspectRatio.
	FixAspectRatio bool
	AspectRatio    float64

	ZeroTangentialDistortion bool
	FixPrincipalPoint        bool

	// UseIntrinsicGuess seeds the solver with IntrinsicGuess.
	UseIntrinsicGuess bool
	IntrinsicGuess    *transform.PinholeCameraIntrinsics
}

// Validate returns every problem with the configuration at once.
func (cfg Configuration) Validate() error {
	var errs error
	if cfg.FixAspectRatio && !(cfg.AspectRatio > 0 && !math.IsInf(cfg.AspectRatio, 0)) {
		errs = multierr.Append(errs, NewConfigurationError("aspect ratio must be positive, got %v", cfg.AspectRatio))
	}
	if cfg.UseIntrinsicGuess {
		if cfg.IntrinsicGuess == nil {
			errs = multierr.Append(errs, NewConfigurationError("intrinsic guess requested but none given"))
		} else if err := cfg.IntrinsicGuess.CheckValid(); err != nil {
			errs = multierr.Append(errs, NewConfigurationError("invalid intrinsic guess: %v", err))
		}
	}
	return errs
}

// Flags translates the configuration into the solver bitmask without the policy bits.
func (cfg Configuration) Flags() Flags {
	var flags Flags
	if cfg.UseIntrinsicGuess {
		flags |= FlagUseIntrinsicGuess
	}
	if cfg.FixAspectRatio {
		flags |= FlagFixAspectRatio
	}
	if cfg.FixPrincipalPoint {
		flags |= FlagFixPrincipalPoint
	}
	if cfg.ZeroTangentialDistortion {
		flags |= FlagZeroTangentDist
	}
	return flags
}

// EffectiveFlags is what the solver actually receives: the user's flags plus PolicyFlags.
func (cfg Configuration) EffectiveFlags() Flags {
	return cfg.Flags() | PolicyFlags
}
