// Package tracker produces the set of boxes to render at each tick by
// merging the active detection frame with boxes still inside their
// hold-over window. Detections are sparse; without hold-over and position
// blending the overlay would flicker and step between frames.
package tracker

import (
	"sync"

	"github.com/hpsslab/smile-2dvp/internal/types"
)

// Tuning contains the tracker's empirically chosen constants. They were
// revised across iterations of the player, so they stay configurable.
type Tuning struct {
	// BlendWeight is the weight of the new detection in the position
	// blend, in (0,1]. 1.0 replaces positions outright.
	BlendWeight float64
	// HoldDuration is how long (playback seconds) an undetected identity
	// stays on screen. 0 means boxes exist only while actively detected.
	HoldDuration float64
	// SeekThreshold is the tick-to-tick time delta, beyond the expected
	// tick interval, that counts as a seek.
	SeekThreshold float64
	// TickInterval is the expected playback-time advance per tick.
	TickInterval float64
}

// State is the tracker's working set between ticks. It is exclusively
// owned by the render loop; Tick consumes one State and returns the next,
// so no incidental sharing can occur.
type State struct {
	boxes    map[string]types.TrackedBox
	lastTime float64
	primed   bool
}

// NewState returns an empty working set.
func NewState() State {
	return State{boxes: make(map[string]types.TrackedBox)}
}

// Tracker applies the per-tick merge/hold/evict rules.
type Tracker struct {
	mu     sync.RWMutex
	tuning Tuning
}

// New creates a tracker with the given tuning.
func New(tuning Tuning) *Tracker {
	return &Tracker{tuning: tuning}
}

// SetTuning replaces the tuning constants at runtime.
func (t *Tracker) SetTuning(tuning Tuning) {
	t.mu.Lock()
	t.tuning = tuning
	t.mu.Unlock()
}

// Tuning returns the current tuning constants.
func (t *Tracker) Tuning() Tuning {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tuning
}

// Tick folds the active frame into the previous working set and returns
// the next set plus the boxes to render. now is the current playback time;
// seeking is the media's explicit scrubbing signal.
//
// Guarantees: no identity appears twice in the output, and no output box
// carries a LastSeen in the future relative to now. Output order is not
// stable across ticks.
func (t *Tracker) Tick(s State, frame types.Frame, now float64, seeking bool) (State, []types.TrackedBox) {
	tuning := t.Tuning()

	if s.boxes == nil {
		s.boxes = make(map[string]types.TrackedBox)
	}

	if seeking || t.isDiscontinuity(s, now, tuning) {
		// Discard all held-over state: after a jump the previous tick's
		// positions belong to a different part of the timeline.
		next := State{boxes: make(map[string]types.TrackedBox, len(frame.Boxes)), lastTime: now, primed: true}
		for _, box := range frame.Boxes {
			if box.Identity == "" {
				continue
			}
			next.boxes[box.Identity] = types.TrackedBox{Box: box, LastSeen: now}
		}
		return next, collect(next.boxes)
	}

	next := State{boxes: make(map[string]types.TrackedBox, len(s.boxes)+len(frame.Boxes)), lastTime: now, primed: true}

	// Merge or create boxes present in the active frame.
	for _, box := range frame.Boxes {
		if box.Identity == "" {
			// Malformed record: skip the box, never abort the tick.
			continue
		}
		tracked := types.TrackedBox{Box: box, LastSeen: now}
		if prev, ok := s.boxes[box.Identity]; ok {
			tracked.BBox = blend(prev.BBox, box.BBox, tuning.BlendWeight)
		}
		next.boxes[box.Identity] = tracked
	}

	// Hold identities that dropped out of detection, unchanged in
	// position, until their window elapses.
	for id, prev := range s.boxes {
		if _, ok := next.boxes[id]; ok {
			continue
		}
		if now-prev.LastSeen <= tuning.HoldDuration {
			prev.Held = true
			next.boxes[id] = prev
		}
	}

	return next, collect(next.boxes)
}

// isDiscontinuity reports whether the time delta since the previous tick
// indicates a seek. Backward movement is always a seek.
func (t *Tracker) isDiscontinuity(s State, now float64, tuning Tuning) bool {
	if !s.primed {
		return false
	}
	delta := now - s.lastTime
	if delta < 0 {
		return true
	}
	return delta > tuning.TickInterval+tuning.SeekThreshold
}

// blend interpolates the previous rectangle toward the new detection. The
// weight favors the new sample to avoid lag while damping jitter.
func blend(prev, next types.NormalizedRect, weight float64) types.NormalizedRect {
	return types.NormalizedRect{
		X:      prev.X + weight*(next.X-prev.X),
		Y:      prev.Y + weight*(next.Y-prev.Y),
		Width:  prev.Width + weight*(next.Width-prev.Width),
		Height: prev.Height + weight*(next.Height-prev.Height),
	}
}

func collect(boxes map[string]types.TrackedBox) []types.TrackedBox {
	out := make([]types.TrackedBox, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, b)
	}
	return out
}
