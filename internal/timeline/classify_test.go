package timeline

import "testing"

func TestMotionworthy_KeywordMatch(t *testing.T) {
	c := NewKeywordClassifier()
	if !c.Motionworthy("o cachorro estava correndo pelo campo", "", 5) {
		t.Error("motion keyword within duration ceiling should recommend motion")
	}
}

func TestMotionworthy_DurationCeiling(t *testing.T) {
	c := NewKeywordClassifier()
	// Keyword matches but the scene is too long to hold a camera move.
	if c.Motionworthy("ele estava correndo", "", 11.5) {
		t.Error("scene over the duration ceiling must never recommend motion")
	}
	if !c.Motionworthy("ele estava correndo", "", 11.0) {
		t.Error("scene at exactly the ceiling should still recommend motion")
	}
}

func TestMotionworthy_ArousedEmotion(t *testing.T) {
	c := NewKeywordClassifier()
	if !c.Motionworthy("uma sala vazia e silenciosa", "tensão", 6) {
		t.Error("high-arousal emotion should recommend motion without keywords")
	}
	if c.Motionworthy("uma sala vazia e silenciosa", "calma", 6) {
		t.Error("calm scene without keywords should not recommend motion")
	}
}

func TestVideoworthy_ActionKeyword(t *testing.T) {
	c := NewKeywordClassifier()
	if !c.Videoworthy("a explosão destruiu o prédio inteiro", "") {
		t.Error("action keyword should recommend video")
	}
	if c.Videoworthy("uma tarde tranquila no jardim", "") {
		t.Error("quiet scene should not recommend video")
	}
}

func TestVideoworthy_IntenseEmotionWithMotion(t *testing.T) {
	c := NewKeywordClassifier()
	// Two distinct motion keywords plus an intense emotion.
	if !c.Videoworthy("o carro atravessou a chuva na estrada", "medo") {
		t.Error("intense emotion with two motion keywords should recommend video")
	}
	// Same text without the emotion stays below the video bar.
	if c.Videoworthy("o carro atravessou a chuva na estrada", "") {
		t.Error("motion keywords alone should not recommend video")
	}
}

func TestVideoworthy_EnglishKeywords(t *testing.T) {
	c := NewKeywordClassifier()
	if !c.Videoworthy("the earthquake leveled the old town", "") {
		t.Error("english action keyword should recommend video")
	}
}
