package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType is the business reason for a ledger movement.
type TransactionType string

const (
	TxDeduction TransactionType = "deduction"
	TxRefund    TransactionType = "refund"
	TxGrant     TransactionType = "grant"
)

// OperationType tags the billable product action a deduction pays for.
type OperationType string

const (
	OpScriptGeneration    OperationType = "script_generation"
	OpImageGeneration     OperationType = "image_generation"
	OpVideoGeneration     OperationType = "video_generation"
	OpThumbnailGeneration OperationType = "thumbnail_generation"
	OpTitleAnalysis       OperationType = "title_analysis"
	OpVideoAnalysis       OperationType = "video_analysis"
	OpChannelMonitoring   OperationType = "channel_monitoring"
	OpSceneImprovement    OperationType = "scene_improvement"
)

// Account represents a creator's credit balance.
// Metered=false means the creator supplies their own provider credential
// and is exempt from platform credit metering.
type Account struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Balance     int64     `json:"balance"`
	Metered     bool      `json:"metered"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreditTransaction is one row in the append-only credit history.
// Amount is signed: negative for deductions, positive for grants and refunds.
type CreditTransaction struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Type           TransactionType `json:"type"`
	Operation      OperationType   `json:"operation"`
	Amount         int64           `json:"amount"`
	BalanceAfter   int64           `json:"balance_after"`
	Model          string          `json:"model,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DeductRequest is the payload from the client for a billable action.
type DeductRequest struct {
	AccountID    uuid.UUID       `json:"account_id"`
	Operation    OperationType   `json:"operation"`
	CustomAmount *int64          `json:"custom_amount,omitempty"`
	Multiplier   float64         `json:"multiplier,omitempty"`
	Model        string          `json:"model,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`

	// Bypass means the caller's session already knows the creator uses
	// their own provider credential. When set, no ledger call is made at
	// all. When unset, the account's metered flag decides.
	Bypass bool `json:"bypass,omitempty"`

	// IdempotencyKey comes from the Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-"`
}

// RefundRequest reverses a prior deduction by its transaction id.
type RefundRequest struct {
	AccountID     uuid.UUID `json:"account_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
}

// DeductResponse is the canonical response for a completed deduction.
type DeductResponse struct {
	Transaction CreditTransaction `json:"transaction"`
	Balance     int64             `json:"balance"`
}

// CameraMotion describes a pan/zoom move applied to a still scene image.
type CameraMotion struct {
	Type      string  `json:"type"`
	Intensity float64 `json:"intensity,omitempty"`
}

// Segment is one time-addressable slice of a narration script.
type Segment struct {
	Number            int           `json:"number"`
	Text              string        `json:"text"`
	WordCount         int           `json:"word_count"`
	Duration          float64       `json:"duration"`
	StartTime         float64       `json:"start_time"`
	EndTime           float64       `json:"end_time"`
	WidthPercent      float64       `json:"width_percent,omitempty"`
	Emotion           string        `json:"emotion,omitempty"`
	RetentionTrigger  string        `json:"retention_trigger,omitempty"`
	ImageURL          string        `json:"image_url,omitempty"`
	VideoURL          string        `json:"video_url,omitempty"`
	MotionRecommended bool          `json:"motion_recommended"`
	VideoRecommended  bool          `json:"video_recommended"`
	CameraMotion      *CameraMotion `json:"camera_motion,omitempty"`
}

// IssueSeverity grades a retention issue.
type IssueSeverity string

const (
	SeverityWarning IssueSeverity = "warning"
	SeverityDanger  IssueSeverity = "danger"
)

// ImprovementType names the suggested remediation for a retention issue.
type ImprovementType string

const (
	ImproveHook    ImprovementType = "improve_hook"
	ImproveEmotion ImprovementType = "add_emotion"
	ImproveTrigger ImprovementType = "add_trigger"
	ImprovePacing  ImprovementType = "split_scene"
)

// RetentionIssue flags a stretch of the timeline likely to lose viewers.
type RetentionIssue struct {
	Severity    IssueSeverity   `json:"severity"`
	Message     string          `json:"message"`
	Segments    []int           `json:"segments"`
	Improvement ImprovementType `json:"improvement"`
}

// RetentionReport is the advisory summary over a normalized timeline.
type RetentionReport struct {
	Score  int              `json:"score"`
	Issues []RetentionIssue `json:"issues"`
}

// EstimateRequest asks for a segment list derived from raw script text.
type EstimateRequest struct {
	Script          string `json:"script"`
	WordsPerSegment int    `json:"words_per_segment"`
	WordsPerMinute  int    `json:"words_per_minute"`
}

// NormalizeRequest recomputes timestamps, optionally pinned to a locked total.
type NormalizeRequest struct {
	Segments    []Segment `json:"segments"`
	Locked      bool      `json:"locked"`
	LockedTotal float64   `json:"locked_total,omitempty"`
}

// NormalizeResponse carries the recomputed timeline and its total runtime.
type NormalizeResponse struct {
	Segments []Segment `json:"segments"`
	Total    float64   `json:"total"`
}
