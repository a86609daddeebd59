package timeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/sceneforge/sceneledger/internal/models"
)

const (
	// Ideal scene duration band for retention, in seconds.
	IdealSceneMin = 3.0
	IdealSceneMax = 8.0

	// LongSceneSeconds marks a scene long enough to warn about on its own.
	LongSceneSeconds = 10.0

	emotionWeight  = 40.0
	triggerWeight  = 35.0
	durationWeight = 25.0
)

// continuity is the filler trigger: it keeps the narrative moving but does
// not by itself hold a viewer.
func isContinuity(trigger string) bool {
	t := strings.ToLower(trigger)
	return t == "continuity" || t == "continuidade"
}

func isNeutralEmotion(emotion string) bool {
	e := strings.ToLower(emotion)
	return e == "" || e == "neutral" || e == "neutro"
}

// strongHookEmotions are the tags expected somewhere in the opening scenes.
var strongHookEmotions = map[string]bool{
	"tensão": true, "tensao": true, "tension": true,
	"choque": true, "shock": true,
	"surpresa": true, "surprise": true,
	"curiosidade": true, "curiosity": true,
}

// ScoreRetention computes a 0-100 retention quality score over a timeline and
// a list of advisory issues. The score is a weighted sum of three ratios:
// scenes with real emotion, scenes with a real retention trigger, and scenes
// inside the ideal duration band. Issues never block anything; they feed the
// "improve this scene" follow-up.
func ScoreRetention(segments []models.Segment) models.RetentionReport {
	if len(segments) == 0 {
		return models.RetentionReport{Score: 0, Issues: []models.RetentionIssue{}}
	}

	total := float64(len(segments))
	var withEmotion, withTrigger, inBand int
	for _, s := range segments {
		if !isNeutralEmotion(s.Emotion) {
			withEmotion++
		}
		if s.RetentionTrigger != "" && !isContinuity(s.RetentionTrigger) {
			withTrigger++
		}
		if s.Duration >= IdealSceneMin && s.Duration <= IdealSceneMax {
			inBand++
		}
	}

	score := float64(withEmotion)/total*emotionWeight +
		float64(withTrigger)/total*triggerWeight +
		float64(inBand)/total*durationWeight

	return models.RetentionReport{
		Score:  int(math.Round(score)),
		Issues: detectIssues(segments),
	}
}

func detectIssues(segments []models.Segment) []models.RetentionIssue {
	issues := []models.RetentionIssue{}
	issues = append(issues, neutralRuns(segments)...)
	issues = append(issues, triggerlessRuns(segments)...)
	if issue := longScenes(segments); issue != nil {
		issues = append(issues, *issue)
	}
	if issue := weakHook(segments); issue != nil {
		issues = append(issues, *issue)
	}
	return issues
}

// neutralRuns flags stretches of two or more consecutive scenes with no real
// emotion; three or more is a danger.
func neutralRuns(segments []models.Segment) []models.RetentionIssue {
	var issues []models.RetentionIssue
	var run []int

	flush := func() {
		if len(run) >= 2 {
			severity := models.SeverityWarning
			if len(run) >= 3 {
				severity = models.SeverityDanger
			}
			issues = append(issues, models.RetentionIssue{
				Severity: severity,
				Message: fmt.Sprintf("%d cenas consecutivas sem emoção (cenas %d-%d)",
					len(run), run[0], run[len(run)-1]),
				Segments:    append([]int(nil), run...),
				Improvement: models.ImproveEmotion,
			})
		}
		run = nil
	}

	for _, s := range segments {
		if isNeutralEmotion(s.Emotion) {
			run = append(run, s.Number)
		} else {
			flush()
		}
	}
	flush()
	return issues
}

// triggerlessRuns flags three or more consecutive scenes with no retention
// trigger beyond continuity.
func triggerlessRuns(segments []models.Segment) []models.RetentionIssue {
	var issues []models.RetentionIssue
	var run []int

	flush := func() {
		if len(run) >= 3 {
			issues = append(issues, models.RetentionIssue{
				Severity: models.SeverityWarning,
				Message: fmt.Sprintf("%d cenas consecutivas sem gatilho de retenção (cenas %d-%d)",
					len(run), run[0], run[len(run)-1]),
				Segments:    append([]int(nil), run...),
				Improvement: models.ImproveTrigger,
			})
		}
		run = nil
	}

	for _, s := range segments {
		if s.RetentionTrigger == "" || isContinuity(s.RetentionTrigger) {
			run = append(run, s.Number)
		} else {
			flush()
		}
	}
	flush()
	return issues
}

// longScenes aggregates every scene longer than LongSceneSeconds into a
// single warning.
func longScenes(segments []models.Segment) *models.RetentionIssue {
	var long []int
	for _, s := range segments {
		if s.Duration > LongSceneSeconds {
			long = append(long, s.Number)
		}
	}
	if len(long) == 0 {
		return nil
	}
	return &models.RetentionIssue{
		Severity: models.SeverityWarning,
		Message: fmt.Sprintf("%d cenas com mais de %.0f segundos",
			len(long), LongSceneSeconds),
		Segments:    long,
		Improvement: models.ImprovePacing,
	}
}

// weakHook fires when none of the first three scenes carries a strong
// emotion. Only evaluated on timelines with at least three scenes.
func weakHook(segments []models.Segment) *models.RetentionIssue {
	if len(segments) < 3 {
		return nil
	}
	for _, s := range segments[:3] {
		if strongHookEmotions[strings.ToLower(s.Emotion)] {
			return nil
		}
	}
	return &models.RetentionIssue{
		Severity:    models.SeverityDanger,
		Message:     "as 3 primeiras cenas não têm emoção forte para prender o espectador",
		Segments:    []int{segments[0].Number, segments[1].Number, segments[2].Number},
		Improvement: models.ImproveHook,
	}
}
