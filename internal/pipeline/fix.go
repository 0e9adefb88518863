package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/inbox-api/internal/jsonguard"
	"github.com/sells-group/inbox-api/internal/model"
	"github.com/sells-group/inbox-api/internal/store"
)

// FixInput is a user-supplied correction for an earlier capture. PrevLogID
// is informational only and never mutated. RecordID is nil when the item
// was needs_review and has no stored record yet; in that case
// ExistingRecord (the placeholder the client was handed) is the correction
// context.
type FixInput struct {
	Client         model.ClientMeta
	CaptureID      string
	PrevLogID      string
	RecordID       *string
	UserCorrection string
	ExistingRecord *model.CanonicalRecord
}

// Fix runs the correction flow. When RecordID is present the stored record
// is reloaded and the client-supplied copy ignored, so a stale client can
// never overwrite newer state. The gate is stricter than capture's: a
// low-confidence fix that needed another fix would be a trust failure.
// Terminal states are *Fixed and *NeedsReview; success or failure, exactly
// one new log entry is appended and no prior entry changes.
func (p *Pipeline) Fix(ctx context.Context, in FixInput) (Outcome, error) {
	if _, err := p.store.GetCapture(ctx, in.CaptureID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCaptureNotFound
		}
		return nil, err
	}

	current := in.ExistingRecord
	var resolvedID *string
	if in.RecordID != nil {
		stored, err := p.store.GetRecord(ctx, *in.RecordID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrRecordNotFound
			}
			return nil, err
		}
		current = &stored.Canonical
		resolvedID = in.RecordID
	}
	if current == nil {
		return nil, ErrRecordNotFound
	}

	text, err := p.callModel(ctx, "fix", fixSystemPrompt, fixPayload{
		UserCorrection: in.UserCorrection,
		ExistingRecord: current,
	})
	if err != nil {
		zap.L().Warn("fix: fixer call failed",
			zap.String("capture_id", in.CaptureID),
			zap.Error(err),
		)
		return p.fixReview(ctx, in.CaptureID, current.Type, parseFailureConfidence, couldNotUnderstandClarification)
	}

	obj, err := jsonguard.ParseObject(text)
	if err != nil {
		zap.L().Warn("fix: fixer output not parseable",
			zap.String("capture_id", in.CaptureID),
			zap.Error(err),
		)
		return p.fixReview(ctx, in.CaptureID, current.Type, parseFailureConfidence, couldNotUnderstandClarification)
	}
	env, err := decodeEnvelope(obj)
	if err != nil {
		zap.L().Warn("fix: fixer envelope malformed",
			zap.String("capture_id", in.CaptureID),
			zap.Error(err),
		)
		return p.fixReview(ctx, in.CaptureID, current.Type, parseFailureConfidence, couldNotUnderstandClarification)
	}

	confidence := model.ClampConfidence(env.Confidence)

	if confidence < fixConfidenceFloor || env.Status == "needs_review" {
		return p.fixReview(ctx, in.CaptureID, current.Type, confidence, clarificationOrDefault(env.ClarificationQuestion))
	}

	if env.Record == nil {
		return p.fixReview(ctx, in.CaptureID, current.Type, confidence, recordValidationFailedClarification)
	}

	validated, err := model.SafeValidate(env.Record)
	if err != nil {
		zap.L().Warn("fix: record failed schema validation",
			zap.String("capture_id", in.CaptureID),
			zap.Error(err),
		)
		return p.fixReview(ctx, in.CaptureID, current.Type, confidence, clarifyDetailsClarification)
	}

	validated.Confidence = confidence

	rec := &model.Record{
		CaptureID:  in.CaptureID,
		Type:       validated.Type,
		Title:      validated.Title,
		Confidence: confidence,
		Canonical:  *validated,
	}
	entry := newLogEntry(in.CaptureID, model.LogActionFixed, model.LogStatusFiled, confidence, nil)

	if resolvedID != nil {
		rec.ID = *resolvedID
		entry.RecordID = &rec.ID
		entry.FiledType = &rec.Type
		entry.FiledTitle = &rec.Title
		if err := p.store.UpdateRecord(ctx, rec, entry); err != nil {
			return nil, err
		}
	} else {
		// A needs_review item being filed for the first time via fix.
		rec.ID = uuid.New().String()
		entry.RecordID = &rec.ID
		entry.FiledType = &rec.Type
		entry.FiledTitle = &rec.Title
		if err := p.store.FileRecord(ctx, rec, entry); err != nil {
			return nil, err
		}
	}

	zap.L().Info("fix: applied",
		zap.String("capture_id", in.CaptureID),
		zap.String("record_id", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.Float64("confidence", confidence),
	)

	return &Fixed{
		CaptureID:     in.CaptureID,
		LogID:         entry.ID,
		RecordID:      rec.ID,
		ChangeSummary: env.ChangeSummary,
		Classification: Classification{
			Type:       validated.Type,
			Title:      validated.Title,
			Confidence: confidence,
			Links:      validated.Links,
			Record:     validated,
		},
	}, nil
}

// fixReview appends a fix_attempted log entry; the record row, if any, is
// left untouched.
func (p *Pipeline) fixReview(ctx context.Context, captureID string, t model.RecordType, confidence float64, clarification string) (Outcome, error) {
	placeholder := model.BuildEmptyRecord(t, confidence, clarification)

	entry := newLogEntry(captureID, model.LogActionFixAttempted, model.LogStatusNeedsReview, placeholder.Confidence, placeholder.ClarificationQuestion)
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
