package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/inbox-api/internal/guardrail"
	"github.com/sells-group/inbox-api/internal/jsonguard"
	"github.com/sells-group/inbox-api/internal/model"
)

// CaptureInput is one raw submission from a client.
type CaptureInput struct {
	Client     model.ClientMeta
	RawText    string
	CapturedAt time.Time
	Context    model.CaptureContext
}

// Capture runs the classification flow. The capture row is always written
// first, verbatim; the multi-thought guardrail short-circuits before any
// model call; every other branch converts LLM unreliability into a
// needs_review outcome. Terminal states are *Filed and *NeedsReview, and
// exactly one log entry is appended either way.
func (p *Pipeline) Capture(ctx context.Context, in CaptureInput) (Outcome, error) {
	capture := &model.Capture{
		ID:         uuid.New().String(),
		RawText:    in.RawText,
		Context:    in.Context,
		CapturedAt: in.CapturedAt,
		Client:     in.Client,
	}
	if err := p.store.CreateCapture(ctx, capture); err != nil {
		return nil, err
	}

	if guardrail.Detect(in.RawText) {
		zap.L().Info("capture: multi-thought guardrail fired",
			zap.String("capture_id", capture.ID),
		)
		return p.captureReview(ctx, capture.ID, model.RecordTypeAdmin, guardrailConfidence, multiThoughtClarification)
	}

	text, err := p.callModel(ctx, "classify", classifySystemPrompt, classifyPayload{
		RawText: in.RawText,
		Context: in.Context,
	})
	if err != nil {
		zap.L().Warn("capture: classifier call failed",
			zap.String("capture_id", capture.ID),
			zap.Error(err),
		)
		return p.captureReview(ctx, capture.ID, model.RecordTypeAdmin, parseFailureConfidence, couldNotUnderstandClarification)
	}

	obj, err := jsonguard.ParseObject(text)
	if err != nil {
		zap.L().Warn("capture: classifier output not parseable",
			zap.String("capture_id", capture.ID),
			zap.Error(err),
		)
		return p.captureReview(ctx, capture.ID, model.RecordTypeAdmin, parseFailureConfidence, couldNotUnderstandClarification)
	}
	env, err := decodeEnvelope(obj)
	if err != nil {
		zap.L().Warn("capture: classifier envelope malformed",
			zap.String("capture_id", capture.ID),
			zap.Error(err),
		)
		return p.captureReview(ctx, capture.ID, model.RecordTypeAdmin, parseFailureConfidence, couldNotUnderstandClarification)
	}

	declaredType := model.RecordType(env.Type)
	if !model.ValidRecordType(declaredType) {
		declaredType = model.RecordTypeAdmin
	}
	confidence := model.ClampConfidence(env.Confidence)

	if confidence < captureConfidenceFloor || env.Status == "needs_review" {
		return p.captureReview(ctx, capture.ID, declaredType, confidence, clarificationOrDefault(env.ClarificationQuestion))
	}

	if env.Record == nil {
		return p.captureReview(ctx, capture.ID, declaredType, confidence, recordValidationFailedClarification)
	}

	validated, err := model.SafeValidate(env.Record)
	if err != nil {
		zap.L().Warn("capture: record failed schema validation",
			zap.String("capture_id", capture.ID),
			zap.Error(err),
		)
		return p.captureReview(ctx, capture.ID, declaredType, confidence, clarifyDetailsClarification)
	}

	// The declared decision confidence always wins over the nested copy;
	// outer and stored confidence must never diverge.
	validated.Confidence = confidence

	rec := &model.Record{
		ID:         uuid.New().String(),
		CaptureID:  capture.ID,
		Type:       validated.Type,
		Title:      validated.Title,
		Confidence: confidence,
		Canonical:  *validated,
	}
	entry := newLogEntry(capture.ID, model.LogActionFiled, model.LogStatusFiled, confidence, nil)
	entry.RecordID = &rec.ID
	entry.FiledType = &rec.Type
	entry.FiledTitle = &rec.Title

	if err := p.store.FileRecord(ctx, rec, entry); err != nil {
		return nil, err
	}

	zap.L().Info("capture: filed",
		zap.String("capture_id", capture.ID),
		zap.String("record_id", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.Float64("confidence", confidence),
	)

	return &Filed{
		CaptureID: capture.ID,
		LogID:     entry.ID,
		RecordID:  rec.ID,
		Classification: Classification{
			Type:       validated.Type,
			Title:      validated.Title,
			Confidence: confidence,
			Links:      validated.Links,
			Record:     validated,
		},
	}, nil
}

// captureReview appends a needs_review log entry with an always-valid
// placeholder record and returns the NeedsReview outcome.
func (p *Pipeline) captureReview(ctx context.Context, captureID string, t model.RecordType, confidence float64, clarification string) (Outcome, error) {
	placeholder := model.BuildEmptyRecord(t, confidence, clarification)

	entry := newLogEntry(captureID, model.LogActionNeedsReview, model.LogStatusNeedsReview, placeholder.Confidence, placeholder.ClarificationQuestion)
	if err := p.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}

	return &NeedsReview{
		CaptureID: captureID,
		LogID:     entry.ID,
		Classification: Classification{
			Type:                  placeholder.Type,
			Title:                 placeholder.Title,
			Confidence:            placeholder.Confidence,
			ClarificationQuestion: placeholder.ClarificationQuestion,
			Links:                 placeholder.Links,
			Record:                placeholder,
		},
	}, nil
}
