// Package roidoc loads the two read-only documents the engine consumes:
// the ROI detection sequence and the description name mapping. Sources can
// be local files or http(s) URLs. Input is not trusted: malformed frames
// and boxes are skipped, ordering is repaired downstream, and boxes that
// ship without stable track ids get identities synthesized here.
package roidoc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/hpsslab/smile-2dvp/internal/types"
)

// boxRecord is the wire form of one detection box. bbox is a 4-element
// [x, y, w, h] array in normalized unit-square coordinates.
type boxRecord struct {
	Identity   string    `json:"identity"`
	LabelID    int       `json:"labelId"`
	LabelName  string    `json:"labelName"`
	BBox       []float64 `json:"bbox"`
	Confidence *float64  `json:"confidence"`
}

// frameRecord is the wire form of one detection frame.
type frameRecord struct {
	Timestamp float64     `json:"timestamp"`
	Boxes     []boxRecord `json:"boxes"`
}

// LoadFrames reads and sanitizes the ROI document. Frames come back sorted
// by timestamp with every box carrying a non-empty identity.
func LoadFrames(ctx context.Context, client *http.Client, ref string) ([]types.Frame, error) {
	data, err := fetchDocument(ctx, client, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load roi document: %w", err)
	}

	var records []frameRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse roi document: %w", err)
	}

	var skippedFrames, skippedBoxes int
	frames := make([]types.Frame, 0, len(records))
	for _, rec := range records {
		if rec.Timestamp < 0 {
			skippedFrames++
			continue
		}
		frame := types.Frame{Timestamp: rec.Timestamp, Boxes: make([]types.Box, 0, len(rec.Boxes))}
		for _, b := range rec.Boxes {
			if len(b.BBox) != 4 {
				skippedBoxes++
				continue
			}
			frame.Boxes = append(frame.Boxes, types.Box{
				Identity:  b.Identity,
				LabelID:   b.LabelID,
				LabelName: b.LabelName,
				BBox: types.NormalizedRect{
					X:      b.BBox[0],
					Y:      b.BBox[1],
					Width:  b.BBox[2],
					Height: b.BBox[3],
				},
				Confidence: b.Confidence,
			})
		}
		frames = append(frames, frame)
	}

	// Ingestion-order matching needs sorted frames; the index re-sorts
	// defensively anyway.
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Timestamp < frames[j].Timestamp
	})

	synthesized := SynthesizeIdentities(frames)

	if skippedFrames > 0 || skippedBoxes > 0 {
		slog.Warn("roi document partially malformed",
			"skipped_frames", skippedFrames,
			"skipped_boxes", skippedBoxes,
		)
	}
	slog.Info("roi document loaded",
		"frames", len(frames),
		"synthesized_identities", synthesized,
		"source", ref,
	)

	return frames, nil
}

// mappingRecord is one description mapping entry. The value is either a
// bare path string or an object carrying a path plus synonyms.
type mappingRecord struct {
	Path     string   `json:"path"`
	Synonyms []string `json:"synonyms"`
}

// LoadMapping reads the description mapping document: a flat object whose
// keys are canonical names and whose values are content paths, optionally
// extended with per-entry synonym lists.
func LoadMapping(ctx context.Context, client *http.Client, ref string) (map[string]string, map[string][]string, error) {
	data, err := fetchDocument(ctx, client, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load mapping document: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse mapping document: %w", err)
	}

	entries := make(map[string]string, len(raw))
	synonyms := make(map[string][]string)
	for name, val := range raw {
		var path string
		if err := json.Unmarshal(val, &path); err == nil {
			entries[name] = path
			continue
		}
		var rec mappingRecord
		if err := json.Unmarshal(val, &rec); err != nil || rec.Path == "" {
			slog.Warn("mapping entry malformed, skipping", "name", name)
			continue
		}
		entries[name] = rec.Path
		if len(rec.Synonyms) > 0 {
			synonyms[name] = rec.Synonyms
		}
	}

	slog.Info("mapping document loaded", "entries", len(entries), "source", ref)
	return entries, synonyms, nil
}

// fetchDocument reads a document from a file path or an http(s) URL.
func fetchDocument(ctx context.Context, client *http.Client, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("document fetch returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(ref)
}
