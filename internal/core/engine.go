// Package core wires the playback clock, frame index, box tracker, focus
// classifier and description resolver into the running service: a render
// loop that produces one overlay snapshot per tick, and an orchestrator
// that owns component lifecycle and the control plane callbacks.
package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hpsslab/smile-2dvp/internal/focus"
	"github.com/hpsslab/smile-2dvp/internal/frameindex"
	"github.com/hpsslab/smile-2dvp/internal/overlaybus"
	"github.com/hpsslab/smile-2dvp/internal/playback"
	"github.com/hpsslab/smile-2dvp/internal/tracker"
	"github.com/hpsslab/smile-2dvp/internal/types"
)

// EngineConfig assembles an Engine from its collaborators.
type EngineConfig struct {
	Index      *frameindex.Index
	Tracker    *tracker.Tracker
	Thresholds focus.Thresholds
	Clock      *playback.Clock
	Bus        *overlaybus.Bus
	// Publish forwards each snapshot off-process. May be nil. Errors are
	// logged, never allowed to stall the loop.
	Publish func(types.OverlaySnapshot) error
}

// Engine is the render loop. Each tick reads the clock, looks up the
// active detection frame, advances the tracker and classifies focus, then
// publishes one OverlaySnapshot. Ticks are strictly sequential; nothing in
// the tick path blocks.
type Engine struct {
	index      *frameindex.Index
	tracker    *tracker.Tracker
	thresholds focus.Thresholds
	clock      *playback.Clock
	bus        *overlaybus.Bus
	publish    func(types.OverlaySnapshot) error

	// state is touched only inside tick, under mu.
	state tracker.State

	mu         sync.Mutex
	seq        uint64
	ticks      uint64
	emptyTicks uint64
	latest     types.OverlaySnapshot
}

// NewEngine creates a render loop over the given components.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		index:      cfg.Index,
		tracker:    cfg.Tracker,
		thresholds: cfg.Thresholds,
		clock:      cfg.Clock,
		bus:        cfg.Bus,
		publish:    cfg.Publish,
		state:      tracker.NewState(),
	}
}

// Run ticks at the given interval until the context is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("render loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("render loop stopped", "ticks", e.TickCount())
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick produces exactly one snapshot from the current clock position.
func (e *Engine) tick() {
	position, seeking := e.clock.Now()

	var frame types.Frame
	if e.index != nil {
		active, err := e.index.ActiveAt(position)
		if err != nil {
			// Empty data: keep ticking with no boxes so the overlay
			// clears instead of freezing on stale content.
			if !errors.Is(err, frameindex.ErrEmptyData) {
				slog.Warn("frame lookup failed", "position", position, "error", err)
			}
		} else {
			frame = active
		}
	}

	e.mu.Lock()
	nextState, boxes := e.tracker.Tick(e.state, frame, position, seeking)
	e.state = nextState

	for i := range boxes {
		cls := focus.Classify(boxes[i].Box, e.thresholds)
		boxes[i].Interactive = cls.Interactive
		boxes[i].OccludedFraction = cls.OccludedFraction
	}

	e.seq++
	snap := types.OverlaySnapshot{
		Seq:            e.seq,
		PlaybackTime:   position,
		FrameTimestamp: frame.Timestamp,
		Boxes:          boxes,
	}
	e.ticks++
	if len(boxes) == 0 {
		e.emptyTicks++
	}
	e.latest = snap
	e.mu.Unlock()

	e.bus.Publish(snap)

	if e.publish != nil {
		if err := e.publish(snap); err != nil {
			slog.Debug("snapshot publish failed", "seq", snap.Seq, "error", err)
		}
	}
}

// FindBox returns the box with the given identity from the most recent
// snapshot, for turning a clicked identity back into a nameable target.
func (e *Engine) FindBox(identity string) (types.TrackedBox, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, box := range e.latest.Boxes {
		if box.Identity == identity {
			return box, true
		}
	}
	return types.TrackedBox{}, false
}

// TickCount returns how many ticks have run.
func (e *Engine) TickCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticks
}

// EmptyTickCount returns how many ticks produced zero boxes.
func (e *Engine) EmptyTickCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emptyTicks
}
