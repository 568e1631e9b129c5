package detect

import (
	"sort"

	"github.com/andresmejia3/facedetector/internal/types"
)

// DefaultOverlapThreshold is the suppression threshold used by the pipeline.
const DefaultOverlapThreshold = 0.35

// Suppress collapses overlapping boxes with greedy non-maximum suppression.
//
// Boxes are ranked by their bottom edge. The lowest remaining box becomes the
// anchor and is kept; every other remaining box whose intersection with the
// anchor covers more than threshold of its own area is discarded. The ratio
// is taken over the candidate's area, not the union, so it is asymmetric.
// Kept boxes are returned in pick order with their coordinates unchanged.
func Suppress(boxes []types.Box, threshold float64) []types.Box {
	if len(boxes) == 0 {
		return nil
	}

	n := len(boxes)
	x1 := make([]int, n)
	y1 := make([]int, n)
	x2 := make([]int, n)
	y2 := make([]int, n)
	area := make([]int, n)
	idxs := make([]int, n)
	for i, b := range boxes {
		x1[i], y1[i] = b.X, b.Y
		x2[i], y2[i] = b.X+b.Width, b.Y+b.Height
		area[i] = (b.Width + 1) * (b.Height + 1)
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return y2[idxs[a]] < y2[idxs[b]] })

	var kept []types.Box
	for len(idxs) > 0 {
		last := len(idxs) - 1
		anchor := idxs[last]
		kept = append(kept, boxes[anchor])

		// Filter in place; the write index never overtakes the read index.
		remaining := idxs[:0]
		for _, j := range idxs[:last] {
			w := max(0, min(x2[anchor], x2[j])-max(x1[anchor], x1[j])+1)
			h := max(0, min(y2[anchor], y2[j])-max(y1[anchor], y1[j])+1)
			if float64(w*h)/float64(area[j]) <= threshold {
				remaining = append(remaining, j)
			}
		}
		idxs = remaining
	}
	return kept
}

// OverlapRatio is the fraction of b's area covered by its intersection with a,
// measured the same way Suppress does.
func OverlapRatio(a, b types.Box) float64 {
	w := max(0, min(a.X+a.Width, b.X+b.Width)-max(a.X, b.X)+1)
	h := max(0, min(a.Y+a.Height, b.Y+b.Height)-max(a.Y, b.Y)+1)
	return float64(w*h) / float64((b.Width+1)*(b.Height+1))
}
