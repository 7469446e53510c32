// Package playback models the player's playback position on the daemon
// side. The clock free-runs between authoritative position syncs: while
// playing it advances with wall time at the configured rate, and
// play/pause/seek commands from the player mutate it. The render loop
// reads it once per tick; it never goes backwards except across a seek.
package playback

import (
	"log/slog"
	"sync"
	"time"
)

// resyncSeekSlack is how far an authoritative sync may land from the
// free-running estimate before it counts as a discontinuity rather than
// drift correction.
const resyncSeekSlack = 0.5

// Clock is the playback time source for the render loop.
type Clock struct {
	mu        sync.Mutex
	position  float64   // playback seconds at the last update
	updated   time.Time // wall time of the last update
	playing   bool
	rate      float64
	seekLatch bool
}

// NewClock creates a paused clock at position zero.
func NewClock(rate float64) *Clock {
	if rate <= 0 {
		rate = 1.0
	}
	return &Clock{rate: rate, updated: time.Now()}
}

// Now returns the current playback position and whether a seek happened
// since the previous read. Reading consumes the seek latch, so exactly one
// tick observes each scrub.
func (c *Clock) Now() (position float64, seeking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanceLocked(time.Now())
	seeking = c.seekLatch
	c.seekLatch = false
	return c.position, seeking
}

// Position returns the current playback position without consuming the
// seek latch.
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked(time.Now())
	return c.position
}

// Play resumes local advance.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.advanceLocked(time.Now())
	c.playing = true
	slog.Info("playback resumed", "position", c.position)
}

// Pause freezes the clock.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.advanceLocked(time.Now())
	c.playing = false
	slog.Info("playback paused", "position", c.position)
}

// IsPlaying reports whether the clock is advancing.
func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Seek jumps to a new position and latches the scrub signal for the next
// tick. Negative targets clamp to zero.
func (c *Clock) Seek(position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if position < 0 {
		position = 0
	}
	c.position = position
	c.updated = time.Now()
	c.seekLatch = true
	slog.Info("playback seek", "position", position)
}

// Sync applies the player's authoritative position. Small deviations are
// drift and are corrected silently; large ones are treated as a seek.
func (c *Clock) Sync(position float64, playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.advanceLocked(now)

	delta := position - c.position
	if delta < 0 {
		delta = -delta
	}
	if delta > resyncSeekSlack {
		c.seekLatch = true
		slog.Debug("playback sync discontinuity", "local", c.position, "player", position)
	}

	c.position = position
	c.updated = now
	c.playing = playing
}

// advanceLocked folds elapsed wall time into the position. Caller holds mu.
func (c *Clock) advanceLocked(now time.Time) {
	if c.playing {
		c.position += now.Sub(c.updated).Seconds() * c.rate
	}
	c.updated = now
}
