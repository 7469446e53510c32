package types

// Frame is one timestamped snapshot of detected regions from the ROI
// document. It is unrelated to a raster video frame: detections are sparse
// and irregularly spaced, typically one every few seconds of footage.
type Frame struct {
	// Timestamp is the playback position of this detection, in seconds.
	Timestamp float64 `json:"timestamp"`
	// Boxes are the regions detected at this position, in document order.
	Boxes []Box `json:"boxes"`
}

// Box is a single detected region within a Frame.
type Box struct {
	// Identity is the stable track identifier for this region. The loader
	// guarantees it is non-empty after ingestion: documents that ship
	// without track ids get identities synthesized by spatial matching.
	Identity string `json:"identity,omitempty"`
	// LabelID is the integer class id assigned by the detector.
	LabelID int `json:"labelId"`
	// LabelName overrides the display name derived from LabelID, if set.
	LabelName string `json:"labelName,omitempty"`
	// BBox is the region rectangle in normalized unit-square coordinates.
	BBox NormalizedRect `json:"bbox"`
	// Confidence is the detector score in [0,1]; nil when the document
	// does not carry scores.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Name returns the display name for the box: the explicit override when
// present, else the label table entry, else empty.
func (b *Box) Name(labels map[int]string) string {
	if b.LabelName != "" {
		return b.LabelName
	}
	return labels[b.LabelID]
}

// NormalizedRect is a rectangle in normalized coordinates (0.0 - 1.0),
// resolution-agnostic so overlays survive player resizes. Values outside
// [0,1] are passed through uninterpreted: an off-screen overlay is degraded
// behavior, not an error.
type NormalizedRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the normalized area (width * height).
func (r NormalizedRect) Area() float64 {
	return r.Width * r.Height
}

// CenterX returns the horizontal center of the rectangle.
func (r NormalizedRect) CenterX() float64 {
	return r.X + r.Width/2
}

// CenterY returns the vertical center of the rectangle.
func (r NormalizedRect) CenterY() float64 {
	return r.Y + r.Height/2
}

// ToPixels converts normalized coordinates to pixel coordinates for a given
// surface size.
func (r NormalizedRect) ToPixels(width, height int) PixelRect {
	return PixelRect{
		X:      int(r.X * float64(width)),
		Y:      int(r.Y * float64(height)),
		Width:  int(r.Width * float64(width)),
		Height: int(r.Height * float64(height)),
	}
}

// PixelRect is a rectangle in pixel coordinates.
type PixelRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TrackedBox is the render-time state for one identity: the underlying
// detection plus hold-over bookkeeping. It exists only in the render loop's
// working set and is never persisted.
type TrackedBox struct {
	Box
	// LastSeen is the playback time at which this identity was last
	// present in an active frame. Never in the future relative to the
	// current playback time.
	LastSeen float64 `json:"lastSeen"`
	// Held reports whether the box is currently carried over from a
	// previous tick rather than present in the active frame.
	Held bool `json:"held"`
	// Interactive reports whether the box currently accepts selection.
	Interactive bool `json:"interactive"`
	// OccludedFraction is the fraction of the box's vertical extent
	// covered by the reserved control band, in [0,1].
	OccludedFraction float64 `json:"occludedFraction"`
}

// OverlaySnapshot is what the render loop publishes once per tick for the
// rendering surface to draw.
type OverlaySnapshot struct {
	// Seq is the monotonic tick sequence number.
	Seq uint64 `json:"seq"`
	// PlaybackTime is the clock reading the snapshot was computed at.
	PlaybackTime float64 `json:"playback_time"`
	// FrameTimestamp is the active detection frame's timestamp.
	FrameTimestamp float64 `json:"frame_timestamp"`
	// Boxes is the tracked box set for this tick. Order is not stable
	// across ticks.
	Boxes []TrackedBox `json:"boxes"`
}
