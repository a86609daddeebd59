package timeline

import "github.com/sceneforge/sceneledger/internal/models"

const (
	// LockTolerance is how far (in seconds) a locked total may drift from
	// the natural total before a rescale is applied. Within the tolerance
	// the durations are left untouched to avoid floating-point churn.
	LockTolerance = 0.1

	// DurationEpsilon is the rounding slack for duration-sum comparisons.
	DurationEpsilon = 1e-6
)

// Normalize rebuilds segment timestamps by accumulation. When locked is true
// and lockedTotal differs from the natural total by more than LockTolerance,
// every duration is scaled by lockedTotal/naturalTotal first, so the rescaled
// total matches the pin exactly while each segment keeps its relative share.
// Width percentages are recomputed against the final total. The input slice
// is not mutated.
func Normalize(segments []models.Segment, locked bool, lockedTotal float64) []models.Segment {
	if len(segments) == 0 {
		return []models.Segment{}
	}

	out := make([]models.Segment, len(segments))
	copy(out, segments)

	natural := TotalDuration(out)
	if locked && lockedTotal > 0 && natural > 0 {
		drift := lockedTotal - natural
		if drift < 0 {
			drift = -drift
		}
		if drift > LockTolerance {
			scale := lockedTotal / natural
			for i := range out {
				out[i].Duration *= scale
			}
		}
	}

	total := TotalDuration(out)
	cursor := 0.0
	for i := range out {
		out[i].Number = i + 1
		out[i].StartTime = cursor
		cursor += out[i].Duration
		out[i].EndTime = cursor
		if total > 0 {
			out[i].WidthPercent = out[i].Duration / total * 100
		} else {
			out[i].WidthPercent = 0
		}
	}
	return out
}

// Annotate applies a classifier's motion and video recommendations to every
// segment, returning a new slice.
func Annotate(segments []models.Segment, c SceneClassifier) []models.Segment {
	out := make([]models.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		out[i].MotionRecommended = c.Motionworthy(out[i].Text, out[i].Emotion, out[i].Duration)
		out[i].VideoRecommended = c.Videoworthy(out[i].Text, out[i].Emotion)
	}
	return out
}
