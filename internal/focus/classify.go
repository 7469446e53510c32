// Package focus decides which overlay boxes currently accept selection.
// The rules are layout heuristics: a box must be prominent (centered or
// small enough to need a precise target), confidently detected, and clear
// of the screen corners reserved for native playback controls.
package focus

import "github.com/hpsslab/smile-2dvp/internal/types"

// Thresholds contains the classifier's layout constants, normally taken
// from config with these defaults.
type Thresholds struct {
	// CenterBandMin/Max bound the central region; a box whose center
	// falls inside it on both axes is "approximately centered".
	CenterBandMin float64
	CenterBandMax float64
	// SmallArea qualifies a box regardless of centering when its
	// normalized area is below it.
	SmallArea float64
	// MinConfidence excludes weakly scored boxes. Unscored boxes pass.
	MinConfidence float64
	// ControlCornerTop is where the reserved bottom band starts; a box
	// whose bottom edge passes it, with its center in a left or right
	// ControlMargin strip, sits on native controls and is never
	// interactive.
	ControlCornerTop float64
	ControlMargin    float64
	// ReservedBand is the bottom band height used for the occlusion
	// fraction.
	ReservedBand float64
}

// Defaults returns the thresholds observed to work in the player.
func Defaults() Thresholds {
	return Thresholds{
		CenterBandMin:    0.25,
		CenterBandMax:    0.75,
		SmallArea:        0.05,
		MinConfidence:    0.5,
		ControlCornerTop: 0.85,
		ControlMargin:    0.15,
		ReservedBand:     0.12,
	}
}

// Classification is the per-box result.
type Classification struct {
	// Interactive reports whether the box accepts pointer selection.
	Interactive bool
	// OccludedFraction is how much of the box's vertical extent overlaps
	// the reserved bottom band, in [0,1]. Only the non-occluded top
	// portion of an interactive box accepts input; a fully occluded box
	// has no interactive region at all.
	OccludedFraction float64
}

// Classify is a pure function of the box geometry and score.
func Classify(box types.Box, th Thresholds) Classification {
	occluded := occludedFraction(box.BBox, th.ReservedBand)

	c := Classification{OccludedFraction: occluded}

	// Reserved corner zones win over everything else.
	if inControlCorner(box.BBox, th) {
		return c
	}

	centered := inBand(box.BBox.CenterX(), th) && inBand(box.BBox.CenterY(), th)
	small := box.BBox.Area() < th.SmallArea
	if !centered && !small {
		return c
	}

	if box.Confidence != nil && *box.Confidence <= th.MinConfidence {
		return c
	}

	// Fully inside the reserved band: eligible on paper, but there is no
	// region left to click.
	if occluded >= 1 {
		return c
	}

	c.Interactive = true
	return c
}

func inBand(v float64, th Thresholds) bool {
	return v >= th.CenterBandMin && v <= th.CenterBandMax
}

// inControlCorner reports whether the box sits in the bottom band
// intersected with the left or right margin strips.
func inControlCorner(r types.NormalizedRect, th Thresholds) bool {
	if r.Y+r.Height < th.ControlCornerTop {
		return false
	}
	cx := r.CenterX()
	return cx <= th.ControlMargin || cx >= 1-th.ControlMargin
}

// occludedFraction computes the share of the box height overlapping the
// bottom reserved band.
func occludedFraction(r types.NormalizedRect, band float64) float64 {
	if r.Height <= 0 || band <= 0 {
		return 0
	}
	bandTop := 1 - band
	overlap := (r.Y + r.Height) - bandTop
	if overlap <= 0 {
		return 0
	}
	if overlap >= r.Height {
		return 1
	}
	return overlap / r.Height
}
