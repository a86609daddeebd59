package timeline

import "strings"

// MotionMaxSeconds is the longest scene a pan/zoom camera move still suits.
// Longer holds get a static frame regardless of content.
const MotionMaxSeconds = 11.0

// SceneClassifier decides whether a scene wants camera motion over its still
// image, or full generated video. Implementations must be pure so the
// normalizer can re-run them on every timeline change.
type SceneClassifier interface {
	Motionworthy(text, emotion string, duration float64) bool
	Videoworthy(text, emotion string) bool
}

// KeywordClassifier is the default classifier: a flat bilingual
// (Portuguese/English) keyword match plus emotion-tag checks, lowercased
// substring matching only.
type KeywordClassifier struct {
	MotionKeywords []string
	ActionKeywords []string
	ArousedEmotions map[string]bool
	IntenseEmotions map[string]bool
}

// NewKeywordClassifier returns a classifier with the stock keyword sets.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		MotionKeywords: []string{
			"correndo", "running", "corre", "voando", "flying", "voa",
			"caindo", "falling", "cai", "saltando", "jumping", "salta",
			"carro", "car", "moto", "motorcycle", "trem", "train",
			"aviao", "avião", "airplane", "barco", "boat", "navio", "ship",
			"vento", "wind", "chuva", "rain", "tempestade", "storm",
			"onda", "ondas", "wave", "waves", "rio", "river", "cachoeira",
			"waterfall", "fogo", "fire", "fumaca", "fumaça", "smoke",
			"animal", "animais", "passaro", "pássaro", "bird", "cavalo",
			"horse", "multidao", "multidão", "crowd", "dancando",
			"dançando", "dancing", "girando", "spinning",
		},
		ActionKeywords: []string{
			"explosao", "explosão", "explosion", "explode",
			"luta", "lutando", "fight", "fighting", "batalha", "battle",
			"perseguicao", "perseguição", "chase", "fugindo", "escaping",
			"acidente", "crash", "colisao", "colisão", "collision",
			"terremoto", "earthquake", "furacao", "furacão", "hurricane",
			"tsunami", "avalanche", "erupcao", "erupção", "eruption",
			"tiroteio", "shooting", "guerra", "war", "correu", "sprint",
			"desabando", "collapsing", "estoura", "bursting",
		},
		ArousedEmotions: map[string]bool{
			"tensão": true, "tensao": true, "tension": true,
			"choque": true, "shock": true,
			"surpresa": true, "surprise": true,
			"medo": true, "fear": true,
			"euforia": true, "excitement": true,
			"urgência": true, "urgencia": true, "urgency": true,
		},
		IntenseEmotions: map[string]bool{
			"tensão": true, "tensao": true, "tension": true,
			"choque": true, "shock": true,
			"medo": true, "fear": true,
		},
	}
}

// Motionworthy reports whether a slow pan/zoom suits the scene: short enough
// to hold the move, and either the text mentions movement or the emotion tag
// is high-arousal.
func (c *KeywordClassifier) Motionworthy(text, emotion string, duration float64) bool {
	if duration > MotionMaxSeconds {
		return false
	}
	if c.ArousedEmotions[strings.ToLower(emotion)] {
		return true
	}
	return c.countMatches(text, c.MotionKeywords) > 0
}

// Videoworthy reports whether the scene's intensity exceeds what a pan/zoom
// can convey: an action keyword outright, or an intense emotion backed by at
// least two distinct motion keywords.
func (c *KeywordClassifier) Videoworthy(text, emotion string) bool {
	if c.countMatches(text, c.ActionKeywords) > 0 {
		return true
	}
	return c.IntenseEmotions[strings.ToLower(emotion)] && c.countMatches(text, c.MotionKeywords) >= 2
}

func (c *KeywordClassifier) countMatches(text string, keywords []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
