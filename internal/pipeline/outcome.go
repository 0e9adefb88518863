package pipeline

import "github.com/sells-group/inbox-api/internal/model"

// Classification is the user-facing summary of one pipeline decision. For
// needs_review outcomes Record is an always-valid placeholder, never nil.
type Classification struct {
	Type                  model.RecordType
	Title                 string
	Confidence            float64
	ClarificationQuestion *string
	Links                 []string
	Record                *model.CanonicalRecord
}

// Outcome is the tagged result of a capture or fix invocation. Handlers
// type-switch on the concrete variant; illegal states like "filed without a
// stored record" cannot be expressed.
type Outcome interface {
	outcome()
}

// Filed means a capture cleared the confidence gate and a record was stored.
type Filed struct {
	CaptureID      string
	LogID          string
	RecordID       string
	Classification Classification
}

// NeedsReview means the system declined to file and is awaiting user
// clarification. No record row was written by this invocation.
type NeedsReview struct {
	CaptureID      string
	LogID          string
	Classification Classification
}

// Fixed means a correction cleared the (stricter) fix gate; the record was
// updated in place, or created if the capture had never been filed.
type Fixed struct {
	CaptureID      string
	LogID          string
	RecordID       string
	ChangeSummary  *string
	Classification Classification
}

func (*Filed) outcome()       {}
func (*NeedsReview) outcome() {}
func (*Fixed) outcome()       {}
