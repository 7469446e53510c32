// Package frameindex answers "which detection frame is active at playback
// time t" over the sparse, irregularly spaced frame sequence of an ROI
// document. The index is built once at load time and is immutable
// afterwards, so it is safely shared across render ticks without locking.
package frameindex

import (
	"errors"
	"sort"

	"github.com/hpsslab/smile-2dvp/internal/types"
)

// ErrEmptyData is returned when the index holds no frames. An engine
// instance cannot run without detection data; the caller surfaces this
// instead of rendering from a nil frame.
var ErrEmptyData = errors.New("frameindex: no frames loaded")

// Index is an immutable, timestamp-sorted view of the detection frames.
type Index struct {
	frames []types.Frame
}

// New builds an index from the given frames. Input order is not trusted:
// the slice is copied and sorted ascending by timestamp defensively. When
// two frames carry the same timestamp the later one in document order wins
// the lookup (stable sort keeps it last).
func New(frames []types.Frame) *Index {
	sorted := make([]types.Frame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return &Index{frames: sorted}
}

// Len returns the number of frames in the index.
func (ix *Index) Len() int {
	return len(ix.frames)
}

// Span returns the first and last frame timestamps. Zeroes when empty.
func (ix *Index) Span() (first, last float64) {
	if len(ix.frames) == 0 {
		return 0, 0
	}
	return ix.frames[0].Timestamp, ix.frames[len(ix.frames)-1].Timestamp
}

// ActiveAt returns the frame with the greatest timestamp <= t, the most
// recent detection at or before the playback position. Times before the
// first frame return the first frame. The lookup is monotonic: for
// t1 < t2 the returned timestamps never decrease.
func (ix *Index) ActiveAt(t float64) (types.Frame, error) {
	if len(ix.frames) == 0 {
		return types.Frame{}, ErrEmptyData
	}

	// First frame whose timestamp exceeds t; the active frame is the one
	// before it.
	i := sort.Search(len(ix.frames), func(i int) bool {
		return ix.frames[i].Timestamp > t
	})
	if i == 0 {
		return ix.frames[0], nil
	}

	// i-1 is the last frame at or before t; with duplicate timestamps the
	// stable sort keeps document order, so the later record wins.
	return ix.frames[i-1], nil
}
