package preview

import (
	"math"

	"github.com/scrubline/backend/internal/models"
)

// HoverFrame is what the player shows while the pointer rests on the timeline.
type HoverFrame struct {
	TimeSeconds  float64 `json:"timeSeconds"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	// Index is the value substituted into the pattern.
	Index     int  `json:"index"`
	Available bool `json:"available"`
}

// ResolveHoverFrame maps a pointer position on a timeline of the given width to
// a playback time and the preview frame nearest to it. It is pure and never
// fails; without previews it reports Available=false.
//
// Frame i of an index pattern shows second i-1, so the index is floor(t)+1.
// Seconds patterns take floor(t) directly. Both are clamped to the frames
// promised by count.
func ResolveHoverFrame(pointerX, timelineWidth, duration float64, p Pattern, count int) HoverFrame {
	percent := 0.0
	if timelineWidth > 0 {
		if ratio := pointerX / timelineWidth; !math.IsNaN(ratio) {
			percent = clamp(ratio, 0, 1)
		}
	}
	if duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		duration = 0
	}

	frame := HoverFrame{TimeSeconds: percent * duration}
	if p.Empty() || count <= 0 {
		return frame
	}

	// Clamp before converting; huge durations overflow int.
	second := int(clamp(math.Floor(frame.TimeSeconds), 0, float64(count)))
	switch p.Kind {
	case models.ThumbnailKindIndex:
		frame.Index = clampInt(second+1, 1, count)
	case models.ThumbnailKindSeconds:
		frame.Index = clampInt(second, 0, count-1)
	default:
		return frame
	}

	frame.ThumbnailURL = p.URL(frame.Index)
	frame.Available = true
	return frame
}

// ResolveForVideo is ResolveHoverFrame driven by a stored record.
func ResolveForVideo(pointerX, timelineWidth float64, v models.Video) HoverFrame {
	return ResolveHoverFrame(pointerX, timelineWidth, v.Duration, FromVideo(v), v.ThumbnailCount)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
