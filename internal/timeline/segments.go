// Package timeline converts narration scripts into time-addressable scene
// sequences and derives advisory signals (camera motion, video need,
// retention quality) for the editor UI to surface.
package timeline

import (
	"strings"

	"github.com/sceneforge/sceneledger/internal/models"
)

const (
	// DefaultWordsPerSegment is the chunk size used when the caller
	// supplies none.
	DefaultWordsPerSegment = 18

	// DefaultWordsPerMinute is the assumed narration speech rate.
	DefaultWordsPerMinute = 150
)

// EstimateSegments splits a raw script into contiguous chunks of
// wordsPerSegment words (the last chunk may be shorter) and assigns each a
// duration at the given speech rate. Segments are numbered from 1 and their
// timestamps accumulate with no gaps. An empty or whitespace-only script
// yields an empty slice.
func EstimateSegments(script string, wordsPerSegment, wordsPerMinute int) []models.Segment {
	if wordsPerSegment <= 0 {
		wordsPerSegment = DefaultWordsPerSegment
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}

	words := strings.Fields(script)
	if len(words) == 0 {
		return []models.Segment{}
	}

	var segments []models.Segment
	cursor := 0.0
	for i := 0; i < len(words); i += wordsPerSegment {
		end := i + wordsPerSegment
		if end > len(words) {
			end = len(words)
		}
		chunk := words[i:end]
		duration := float64(len(chunk)) / float64(wordsPerMinute) * 60

		segments = append(segments, models.Segment{
			Number:    len(segments) + 1,
			Text:      strings.Join(chunk, " "),
			WordCount: len(chunk),
			Duration:  duration,
			StartTime: cursor,
			EndTime:   cursor + duration,
		})
		cursor += duration
	}
	return segments
}

// TotalDuration sums segment durations.
func TotalDuration(segments []models.Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Duration
	}
	return total
}
