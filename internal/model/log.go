package model

import "time"

// LogAction tags what happened at one pipeline decision point.
type LogAction string

const (
	LogActionFiled        LogAction = "filed"
	LogActionNeedsReview  LogAction = "needs_review"
	LogActionFixed        LogAction = "fixed"
	LogActionFixAttempted LogAction = "fix_attempted"
)

// LogStatus is the display/filter status of an entry.
type LogStatus string

const (
	LogStatusFiled       LogStatus = "filed"
	LogStatusNeedsReview LogStatus = "needs_review"
)

// LogEntry is one immutable, append-only record of a decision event. Seq is
// assigned by the store at write time and is strictly increasing; the latest
// state of a capture is the entry with the highest Seq for that capture id.
// RecordID, FiledType and FiledTitle are set only when the action resulted
// in a stored record.
type LogEntry struct {
	Seq           int64       `json:"seq"`
	ID            string      `json:"id"`
	CaptureID     string      `json:"capture_id"`
	Action        LogAction   `json:"action"`
	Status        LogStatus   `json:"status"`
	Confidence    float64     `json:"confidence"`
	Clarification *string     `json:"clarification_question"`
	RecordID      *string     `json:"record_id"`
	FiledType     *RecordType `json:"filed_type"`
	FiledTitle    *string     `json:"filed_title"`
	CreatedAt     time.Time   `json:"created_at"`
}

// FeedItem is one row of the recent feed: the latest log entry per capture,
// joined with the capture itself.
type FeedItem struct {
	Seq            int64       `json:"-"`
	CaptureID      string      `json:"capture_id"`
	LogID          string      `json:"inbox_log_id"`
	CapturedAt     time.Time   `json:"captured_at"`
	RawTextPreview string      `json:"raw_text_preview"`
	Status         LogStatus   `json:"status"`
	Type           *RecordType `json:"type"`
	Title          *string     `json:"title"`
	Confidence     *float64    `json:"confidence"`
	RecordID       *string     `json:"record_id"`
}

// PreviewLen is the maximum length of a feed item's raw text preview.
const PreviewLen = 100

// Preview returns the first PreviewLen runes of raw text.
func Preview(raw string) string {
	runes := []rune(raw)
	if len(runes) <= PreviewLen {
		return raw
	}
	return string(runes[:PreviewLen])
}
