package roidoc

import (
	"math"

	"github.com/google/uuid"

	"github.com/hpsslab/smile-2dvp/internal/types"
)

// matchGate is the maximum normalized center distance for carrying an
// identity between consecutive frames.
const matchGate = 0.15

// SynthesizeIdentities assigns a stable identity to every box that ships
// without one. A positional (labelId, index) composite would silently
// reshuffle tracks whenever detections are added or removed mid-sequence,
// so instead boxes are matched to the previous frame by nearest center
// distance within a gate, restricted to the same label; matched boxes
// carry the previous identity forward and unmatched ones get fresh uuids.
// Frames must be sorted by timestamp. Returns the number of fresh
// identities minted.
func SynthesizeIdentities(frames []types.Frame) int {
	minted := 0
	var prev []types.Box

	for fi := range frames {
		boxes := frames[fi].Boxes
		used := make(map[string]bool, len(boxes))

		// Explicit identities claim their previous-frame counterparts
		// first so synthesis cannot steal them.
		for _, b := range boxes {
			if b.Identity != "" {
				used[b.Identity] = true
			}
		}

		for bi := range boxes {
			if boxes[bi].Identity != "" {
				continue
			}
			if id, ok := nearestIdentity(boxes[bi], prev, used); ok {
				boxes[bi].Identity = id
				used[id] = true
				continue
			}
			boxes[bi].Identity = uuid.NewString()
			used[boxes[bi].Identity] = true
			minted++
		}
		prev = boxes
	}
	return minted
}

// nearestIdentity finds the closest unclaimed same-label box in the
// previous frame within the gate.
func nearestIdentity(box types.Box, prev []types.Box, used map[string]bool) (string, bool) {
	bestDist := matchGate
	bestID := ""
	for _, p := range prev {
		if p.Identity == "" || used[p.Identity] || p.LabelID != box.LabelID {
			continue
		}
		d := centerDistance(box.BBox, p.BBox)
		if d <= bestDist {
			bestDist = d
			bestID = p.Identity
		}
	}
	return bestID, bestID != ""
}

func centerDistance(a, b types.NormalizedRect) float64 {
	dx := a.CenterX() - b.CenterX()
	dy := a.CenterY() - b.CenterY()
	return math.Sqrt(dx*dx + dy*dy)
}
