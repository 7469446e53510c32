package playback

import (
	"testing"
	"time"
)

// TestPausedClockHolds verifies a paused clock does not advance.
func TestPausedClockHolds(t *testing.T) {
	c := NewClock(1.0)

	p1, _ := c.Now()
	time.Sleep(30 * time.Millisecond)
	p2, _ := c.Now()
	if p1 != 0 || p2 != 0 {
		t.Errorf("paused clock moved: %v -> %v", p1, p2)
	}
}

// TestPlayingClockAdvancesMonotonically verifies forward progress while
// playing.
func TestPlayingClockAdvancesMonotonically(t *testing.T) {
	c := NewClock(1.0)
	c.Play()

	prev, _ := c.Now()
	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		pos, seeking := c.Now()
		if pos < prev {
			t.Fatalf("clock went backwards: %v -> %v", prev, pos)
		}
		if seeking {
			t.Fatal("continuous playback reported a seek")
		}
		prev = pos
	}
	if prev <= 0 {
		t.Error("playing clock never advanced")
	}
}

// TestSeekLatchConsumedOnce verifies exactly one read observes a scrub.
func TestSeekLatchConsumedOnce(t *testing.T) {
	c := NewClock(1.0)

	c.Seek(42)
	pos, seeking := c.Now()
	if pos < 42 {
		t.Errorf("position after seek = %v, want >= 42", pos)
	}
	if !seeking {
		t.Error("first read after seek did not report seeking")
	}
	if _, seeking = c.Now(); seeking {
		t.Error("seek latch not consumed by first read")
	}
}

func TestSeekClampsNegative(t *testing.T) {
	c := NewClock(1.0)
	c.Seek(-5)
	if pos, _ := c.Now(); pos != 0 {
		t.Errorf("position = %v, want 0", pos)
	}
}

// TestSyncDriftVersusJump verifies a nearby sync corrects silently while a
// distant one latches the seek signal.
func TestSyncDriftVersusJump(t *testing.T) {
	c := NewClock(1.0)

	c.Sync(0.1, true)
	if _, seeking := c.Now(); seeking {
		t.Error("small drift correction reported as seek")
	}

	c.Sync(30, true)
	if _, seeking := c.Now(); !seeking {
		t.Error("large position jump not reported as seek")
	}
	if !c.IsPlaying() {
		t.Error("sync lost the playing state")
	}
}

func TestRateScalesAdvance(t *testing.T) {
	c := NewClock(2.0)
	c.Play()
	time.Sleep(40 * time.Millisecond)
	pos, _ := c.Now()
	// At rate 2.0 roughly 80ms of playback passed; accept generous slack
	// for scheduler jitter.
	if pos < 0.05 {
		t.Errorf("position = %v, want roughly 0.08", pos)
	}
}
