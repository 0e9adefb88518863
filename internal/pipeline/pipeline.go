// Package pipeline orchestrates the trust-gated capture and fix flows:
// guardrail → LLM call → JSON guard → confidence gate → persist. LLM
// unreliability is a domain outcome here, never an error; every invocation
// appends exactly one inbox log entry.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/inbox-api/internal/config"
	"github.com/sells-group/inbox-api/internal/model"
	"github.com/sells-group/inbox-api/internal/store"
	"github.com/sells-group/inbox-api/pkg/anthropic"
)

// Filing thresholds. These are cross-cutting contracts shared with the test
// suite, not tunables: a correction must clear a higher bar than an initial
// guess.
const (
	captureConfidenceFloor = 0.60
	fixConfidenceFloor     = 0.70
)

// Sentinel confidences for pipeline-generated needs_review outcomes.
const (
	guardrailConfidence    = 0.3
	parseFailureConfidence = 0.2
)

// Clarification messages for pipeline-generated needs_review outcomes.
const (
	multiThoughtClarification           = "This looks like several separate thoughts. Please split them up and capture each one on its own."
	couldNotUnderstandClarification     = "could not understand input"
	recordValidationFailedClarification = "record validation failed"
	clarifyDetailsClarification         = "please clarify the details of this item"
	genericClarification                = "Can you clarify what you wanted to capture?"
)

// ErrRecordNotFound is returned when a fix names a record id that does not
// exist. ErrCaptureNotFound is the same for the capture id. Both map to 400
// at the HTTP boundary.
var (
	ErrRecordNotFound  = eris.New("pipeline: could not find existing record")
	ErrCaptureNotFound = eris.New("pipeline: could not find capture")
)

// Pipeline runs the capture and fix flows. The LLM client is injected;
// swapping it for a mock is how the flows are tested.
type Pipeline struct {
	store   store.Store
	ai      anthropic.Client
	cfg     config.AnthropicConfig
	limiter *rate.Limiter
}

// New creates a Pipeline.
func New(st store.Store, ai anthropic.Client, cfg config.AnthropicConfig) *Pipeline {
	rps := cfg.MaxRPS
	if rps <= 0 {
		rps = 5
	}
	return &Pipeline{
		store:   st,
		ai:      ai,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Recent returns the latest-state feed page.
func (p *Pipeline) Recent(ctx context.Context, limit int, cursor *int64) ([]model.FeedItem, error) {
	return p.store.ListRecent(ctx, limit, cursor)
}

// History returns the full append-only log for one capture, oldest first.
func (p *Pipeline) History(ctx context.Context, captureID string) ([]model.LogEntry, error) {
	return p.store.ListLog(ctx, captureID)
}

// envelope is the declared top level of a classifier or fixer response.
// The nested record is kept raw: it goes through Normalize/SafeValidate,
// never straight into a struct.
type envelope struct {
	Status                string         `json:"status"`
	Type                  string         `json:"type"`
	Title                 string         `json:"title"`
	Confidence            float64        `json:"confidence"`
	ClarificationQuestion *string        `json:"clarification_question"`
	Links                 []string       `json:"links"`
	ChangeSummary         *string        `json:"change_summary"`
	Record                map[string]any `json:"record"`
}

func decodeEnvelope(obj map[string]any) (*envelope, error) {
	buf, err := json.Marshal(obj)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode envelope")
	}
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode envelope")
	}
	return &env, nil
}

func clarificationOrDefault(q *string) string {
	if q != nil && *q != "" {
		return *q
	}
	return genericClarification
}

// callModel sends one rate-limited, timeout-bounded message to the model
// and returns the concatenated text content. There is no retry: a failed or
// malformed response routes to needs_review, asking beats re-guessing.
func (p *Pipeline) callModel(ctx context.Context, phase, system string, payload any) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "pipeline: rate limit wait")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: marshal model input")
	}

	timeout := time.Duration(p.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := p.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := p.ai.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:     p.cfg.Model,
		MaxTokens: maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages: []anthropic.Message{
			{Role: "user", Content: string(body)},
		},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(p.cfg.Model, phase)
	return extractText(resp), nil
}

func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var out string
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

func newLogEntry(captureID string, action model.LogAction, status model.LogStatus, confidence float64, clarification *string) *model.LogEntry {
	return &model.LogEntry{
		ID:            ulid.Make().String(),
		CaptureID:     captureID,
		Action:        action,
		Status:        status,
		Confidence:    confidence,
		Clarification: clarification,
	}
}
