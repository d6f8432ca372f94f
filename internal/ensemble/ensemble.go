// Package ensemble fans an image out to the available recognition backends
// and merges their detections into a single deduplicated, weighted set. The
// merge is deterministic for a given set of backend results regardless of
// invocation order.
package ensemble

import (
	"context"
	"image"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docfiscal/nfscan/internal/backend"
)

const (
	// iouThreshold is the spatial overlap above which two detections are
	// considered the same text region. The boundary is exclusive: an IoU
	// of exactly 0.3 starts a new region.
	iouThreshold = 0.3
	// consensusBonus is added per contributing detection when scoring the
	// text variants of a region.
	consensusBonus = 0.1
	// agreementBoost multiplies the winner's confidence when at least two
	// backends agree on the text, capped at 1.0.
	agreementBoost = 1.1

	// DefaultConfidenceThreshold drops low-confidence detections after
	// merging.
	DefaultConfidenceThreshold = 0.5
)

// BackendResult is one backend's contribution to an ensemble call. Err
// records a per-backend failure; the backend's detections are then absent
// from the merge but the ensemble call itself still succeeds.
type BackendResult struct {
	Backend    string              `json:"backend"`
	Weight     float64             `json:"weight"`
	Detections []backend.Detection `json:"detections"`
	Duration   time.Duration       `json:"duration_ns"`
	Err        error               `json:"-"`
}

// Ensemble drives the registered backends.
type Ensemble struct {
	registry *backend.Registry
}

func New(registry *backend.Registry) *Ensemble {
	return &Ensemble{registry: registry}
}

// Recognize runs the named backends (all available ones when names is empty)
// in parallel and merges their detections. It fails only when no backend is
// available; individual backend errors are logged and tolerated.
func (e *Ensemble) Recognize(ctx context.Context, img image.Image, names []string) ([]backend.Detection, []BackendResult, error) {
	backends := e.registry.Select(names)
	if len(backends) == 0 {
		return nil, nil, backend.ErrNoBackendAvailable
	}

	results := make([]BackendResult, len(backends))
	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b backend.Backend) {
			defer wg.Done()
			start := time.Now()
			dets, err := b.Detect(ctx, img)
			results[i] = BackendResult{
				Backend:    b.Name(),
				Weight:     b.Weight(),
				Detections: dets,
				Duration:   time.Since(start),
				Err:        err,
			}
			if err != nil {
				slog.Warn("backend recognition failed",
					"backend", b.Name(), "error", err)
				results[i].Detections = nil
			} else {
				slog.Debug("backend recognition done",
					"backend", b.Name(),
					"detections", len(dets),
					"duration", time.Since(start))
			}
		}(i, b)
	}
	wg.Wait()

	return Merge(results), results, nil
}

// candidate is one detection annotated with its origin and merge score.
type candidate struct {
	det     backend.Detection
	backend string
	score   float64
}

type region struct {
	box     image.Rectangle
	members []candidate
}

// Merge combines per-backend detections into one deduplicated list.
//
// Detections are scored confidence x backend weight and processed in
// descending score order. Spatially overlapping detections (IoU above the
// threshold with a region's representative box) form regions; each region
// emits the text variant with the highest summed score plus a per-vote
// consensus bonus, represented by its most confident detection. Agreement of
// two or more backends boosts that confidence. Detections without geometry
// bypass grouping. The output is deduplicated by normalized text and ordered
// top-to-bottom, left-to-right.
func Merge(results []BackendResult) []backend.Detection {
	var cands []candidate
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, d := range r.Detections {
			if strings.TrimSpace(d.Text) == "" {
				continue
			}
			cands = append(cands, candidate{
				det:     d,
				backend: r.Backend,
				score:   d.Confidence * r.Weight,
			})
		}
	}
	sortCandidates(cands)

	var regions []*region
	var unboxed []candidate
	for _, c := range cands {
		if !c.det.HasBox() {
			unboxed = append(unboxed, c)
			continue
		}
		joined := false
		for _, r := range regions {
			if iou(c.det.Box, r.box) > iouThreshold {
				r.members = append(r.members, c)
				joined = true
				break
			}
		}
		if !joined {
			regions = append(regions, &region{box: c.det.Box, members: []candidate{c}})
		}
	}

	merged := make([]backend.Detection, 0, len(regions)+len(unboxed))
	for _, r := range regions {
		merged = append(merged, r.resolve())
	}
	for _, c := range unboxed {
		merged = append(merged, c.det)
	}

	merged = dedupeByText(merged)

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		// Boxless detections sort after everything positioned.
		if a.HasBox() != b.HasBox() {
			return a.HasBox()
		}
		if a.Box.Min.Y != b.Box.Min.Y {
			return a.Box.Min.Y < b.Box.Min.Y
		}
		return a.Box.Min.X < b.Box.Min.X
	})
	return merged
}

// resolve picks the region's winning text by weighted vote and returns its
// most confident detection, boosted on multi-backend agreement.
func (r *region) resolve() backend.Detection {
	if len(r.members) == 1 {
		return r.members[0].det
	}

	type vote struct {
		total    float64
		members  []candidate
		backends map[string]bool
	}
	votes := make(map[string]*vote)
	order := make([]string, 0, 4)
	for _, m := range r.members {
		key := NormalizeText(m.det.Text)
		v, ok := votes[key]
		if !ok {
			v = &vote{backends: make(map[string]bool)}
			votes[key] = v
			order = append(order, key)
		}
		v.total += m.score + consensusBonus
		v.members = append(v.members, m)
		v.backends[m.backend] = true
	}

	// order preserves score ranking, so ties fall to the stronger variant.
	bestKey := order[0]
	for _, key := range order[1:] {
		if votes[key].total > votes[bestKey].total {
			bestKey = key
		}
	}

	winner := votes[bestKey]
	rep := winner.members[0]
	for _, m := range winner.members[1:] {
		if m.det.Confidence > rep.det.Confidence {
			rep = m
		}
	}
	det := rep.det
	if len(winner.backends) >= 2 {
		det.Confidence = min(det.Confidence*agreementBoost, 1.0)
	}
	return det
}

// CombinedText walks backends by descending priority and concatenates each
// backend's detections in reading order, skipping any normalized text already
// emitted.
func CombinedText(results []BackendResult) string {
	ordered := make([]BackendResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Weight != ordered[j].Weight {
			return ordered[i].Weight > ordered[j].Weight
		}
		return ordered[i].Backend < ordered[j].Backend
	})

	seen := make(map[string]bool)
	var parts []string
	for _, r := range ordered {
		if r.Err != nil {
			continue
		}
		dets := make([]backend.Detection, len(r.Detections))
		copy(dets, r.Detections)
		sort.SliceStable(dets, func(i, j int) bool {
			a, b := dets[i], dets[j]
			if a.HasBox() != b.HasBox() {
				return a.HasBox()
			}
			if a.Box.Min.Y != b.Box.Min.Y {
				return a.Box.Min.Y < b.Box.Min.Y
			}
			return a.Box.Min.X < b.Box.Min.X
		})
		for _, d := range dets {
			key := NormalizeText(d.Text)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			parts = append(parts, strings.TrimSpace(d.Text))
		}
	}
	return strings.Join(parts, " ")
}

// FilterByConfidence returns the detections at or above the threshold.
func FilterByConfidence(dets []backend.Detection, threshold float64) []backend.Detection {
	out := make([]backend.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// NormalizeText lower-cases and collapses internal whitespace, the identity
// used for text voting and deduplication.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// sortCandidates orders by descending score with positional and textual
// tie-breaks so the merge is reproducible across invocation orders.
func sortCandidates(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.det.Box.Min.Y != b.det.Box.Min.Y {
			return a.det.Box.Min.Y < b.det.Box.Min.Y
		}
		if a.det.Box.Min.X != b.det.Box.Min.X {
			return a.det.Box.Min.X < b.det.Box.Min.X
		}
		if a.det.Text != b.det.Text {
			return a.det.Text < b.det.Text
		}
		return a.backend < b.backend
	})
}

func dedupeByText(dets []backend.Detection) []backend.Detection {
	seen := make(map[string]bool, len(dets))
	out := dets[:0]
	for _, d := range dets {
		key := NormalizeText(d.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// iou computes intersection-over-union of two rectangles.
func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := inter.Dx() * inter.Dy()
	unionArea := a.Dx()*a.Dy() + b.Dx()*b.Dy() - interArea
	if unionArea <= 0 {
		return 0
	}
	return float64(interArea) / float64(unionArea)
}
