package generation

import "math"

type aspectRatio struct {
	label string
	value float64
}

// Ratios accepted by the image provider, in tie-break order.
var allowedRatios = []aspectRatio{
	{"1:1", 1},
	{"2:3", 2.0 / 3.0},
	{"3:2", 3.0 / 2.0},
	{"3:4", 3.0 / 4.0},
	{"4:3", 4.0 / 3.0},
	{"4:5", 4.0 / 5.0},
	{"5:4", 5.0 / 4.0},
	{"9:16", 9.0 / 16.0},
	{"16:9", 16.0 / 9.0},
	{"21:9", 21.0 / 9.0},
}

// ResolveAspectRatio returns the allowed ratio closest to width/height.
// Non-positive dimensions resolve to 1:1.
func ResolveAspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return allowedRatios[0].label
	}
	target := float64(width) / float64(height)
	best := allowedRatios[0]
	bestDiff := math.Abs(target - best.value)
	for _, r := range allowedRatios[1:] {
		if d := math.Abs(target - r.value); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best.label
}
