package types

import "math"

// Region is a normalized rectangle with coordinates in [0,1] relative to the
// submitted image. JSON field names follow the analysis service.
type Region struct {
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
}

// Normalize clamps the region into the unit square. It reports false when
// nothing drawable is left.
func (r Region) Normalize() (Region, bool) {
	if math.IsNaN(r.Left) || math.IsNaN(r.Top) || math.IsNaN(r.Width) || math.IsNaN(r.Height) {
		return Region{}, false
	}
	x0 := clamp(r.Left, 0, 1)
	y0 := clamp(r.Top, 0, 1)
	x1 := clamp(r.Left+r.Width, 0, 1)
	y1 := clamp(r.Top+r.Height, 0, 1)
	if x1 <= x0 || y1 <= y0 {
		return Region{}, false
	}
	return Region{Left: x0, Top: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// Pixels converts the region into pixel corners for a w x h image.
// The returned rectangle is at least one pixel wide and tall.
func (r Region) Pixels(w, h int) (x0, y0, x1, y1 int) {
	x0 = int(clamp(r.Left, 0, 1)*float64(w) + 0.5)
	y0 = int(clamp(r.Top, 0, 1)*float64(h) + 0.5)
	x1 = int(clamp(r.Left+r.Width, 0, 1)*float64(w) + 0.5)
	y1 = int(clamp(r.Top+r.Height, 0, 1)*float64(h) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

// AnalysisResult is what the analysis service returns for one image.
type AnalysisResult struct {
	Label    string  `json:"emotion"`
	AudioURL string  `json:"audioUrl,omitempty"`
	Region   *Region `json:"boundingBox,omitempty"`
}

// Phase is the position of a session in the capture/submit/render cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLiveFeed
	PhaseCaptured
	PhaseSubmitting
	PhaseResulted
	PhaseFailed
)

var phaseNames = [...]string{"idle", "live_feed", "captured", "submitting", "resulted", "failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText lets phases appear by name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
