package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inbox-api/internal/model"
)

func captureInput(raw string) CaptureInput {
	return CaptureInput{
		Client:     model.ClientMeta{App: "test", Version: "1.0", DeviceID: "dev-1", Timezone: "UTC"},
		RawText:    raw,
		CapturedAt: time.Now().UTC(),
		Context:    model.CaptureContext{URL: "https://example.com", PageTitle: "Example"},
	}
}

func TestCapture_HighConfidenceFiles(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}

	// The nested record claims confidence 0.0; the declared decision
	// confidence must win and be what gets stored.
	ai.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{
			"status": "filed", "type": "person", "title": "Sarah Chen",
			"confidence": 0.9, "clarification_question": null, "links": [],
			"record": {
				"schema_version": "1.0", "type": "person", "title": "Sarah Chen",
				"confidence": 0.0,
				"person": {"person_name": "Sarah Chen", "context": "met at conference"}
			}
		}`), nil).Once()

	p, st := newTestPipeline(t, ai)

	out, err := p.Capture(ctx, captureInput("Met Sarah Chen at the conference, works on dev tools"))
	require.NoError(t, err)

	filed, ok := out.(*Filed)
	require.True(t, ok, "expected *Filed, got %T", out)
	assert.Equal(t, model.RecordTypePerson, filed.Classification.Type)
	assert.Equal(t, 0.9, filed.Classification.Confidence)
	assert.NotEmpty(t, filed.RecordID)
	assert.NotEmpty(t, filed.LogID)

	rec, err := st.GetRecord(ctx, filed.RecordID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rec.Confidence)
	assert.Equal(t, 0.9, rec.Canonical.Confidence, "nested confidence must be overwritten by the declared value")
	require.NotNil(t, rec.Canonical.Person.PersonName)
	assert.Equal(t, "Sarah Chen", *rec.Canonical.Person.PersonName)

	entries, err := st.ListLog(ctx, filed.CaptureID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogActionFiled, entries[0].Action)
	assert.Equal(t, model.LogStatusFiled, entries[0].Status)
	require.NotNil(t, entries[0].RecordID)
	assert.Equal(t, filed.RecordID, *entries[0].RecordID)

	ai.AssertExpectations(t)
}

func TestCapture_LowConfidenceNeedsReview(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}

	ai.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{
			"status": "filed", "type": "idea", "title": "Something",
			"confidence": 0.45, "clarification_question": "Is this an idea or a task?",
			"links": [], "record": {"schema_version": "1.0", "type": "idea", "title": "Something", "confidence": 0.45}
		}`), nil).Once()

	p, st := newTestPipeline(t, ai)

	out, err := p.Capture(ctx, captureInput("maybe do the thing"))
	require.NoError(t, err)

	review, ok := out.(*NeedsReview)
	require.True(t, ok, "expected *NeedsReview, got %T", out)
	assert.Equal(t, 0.45, review.Classification.Confidence)
	require.NotNil(t, review.Classification.ClarificationQuestion)
	assert.Equal(t, "Is this an idea or a task?", *review.Classification.ClarificationQuestion)

	// No silent filing: no record row, but a well-formed placeholder.
	require.NotNil(t, review.Classification.Record)
	assert.Equal(t, model.EmptyRecordTitle, review.Classification.Record.Title)

	entries, err := st.ListLog(ctx, review.CaptureID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogActionNeedsReview, entries[0].Action)
	assert.Nil(t, entries[0].RecordID)
}

func TestCapture_MultiThoughtSkipsLLM(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}
	p, st := newTestPipeline(t, ai)

	out, err := p.Capture(ctx, captureInput("Get quotes for the garage insulation. Also call the electrician; and check supplier pricing."))
	require.NoError(t, err)

	review, ok := out.(*NeedsReview)
	require.True(t, ok, "expected *NeedsReview, got %T", out)
	assert.Equal(t, guardrailConfidence, review.Classification.Confidence)
	assert.Equal(t, model.RecordTypeAdmin, review.Classification.Type)
	require.NotNil(t, review.Classification.ClarificationQuestion)
	assert.Equal(t, multiThoughtClarification, *review.Classification.ClarificationQuestion)

	// The raw text is still stored verbatim.
	capture, err := st.GetCapture(ctx, review.CaptureID)
	require.NoError(t, err)
	assert.Equal(t, "Get quotes for the garage insulation. Also call the electrician; and check supplier pricing.", capture.RawText)

	ai.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestCapture_UnparseableModelOutput(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}

	ai.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("I'm sorry, I can't classify that note."), nil).Once()

	p, st := newTestPipeline(t, ai)

	out, err := p.Capture(ctx, captureInput("some note"))
	require.NoError(t, err, "malformed model output must never surface as an error")

	review, ok := out.(*NeedsReview)
	require.True(t, ok, "expected *NeedsReview, got %T", out)
	assert.Equal(t, parseFailureConfidence, review.Classification.Confidence)
	require.NotNil(t, review.Classification.ClarificationQuestion)
	assert.Equal(t, couldNotUnderstandClarification, *review.Classification.ClarificationQuestion)

	entries, err := st.ListLog(ctx, review.CaptureID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCapture_ModelCallFailure(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}

	ai.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(nil, eris.New("api: overloaded")).Once()

	p, _ := newTestPipeline(t, ai)

	out, err := p.Capture(ctx, captureInput("some note"))
	require.NoError(t, err)

	review, ok := out.(*NeedsReview)
	require.True(t, ok)
	assert.Equal(t, parseFailureConfidence, review.Classification.Confidence)
}

func TestCapture_InvalidRecordFromModel(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}

	// High confidence but the nested record has a relative due date.
	ai.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{
			"status": "filed", "type": "admin", "title": "Renew passport",
			"confidence": 0.95, "clarification_question": null, "links": [],
			"record": {
				"schema_version": "1.0", "type": "admin", "title": "Renew passport",
				"confidence": 0.95, "admin": {"task": "renew passport", "due_date": "next week"}
			}
		}`), nil).Once()

	p, st := newTestPipeline(t, ai)

	out, err := p.Capture(ctx, captureInput("renew passport next week"))
	require.NoError(t, err)

	review, ok := out.(*NeedsReview)
	require.True(t, ok, "invalid record must route to needs_review, got %T", out)
	require.NotNil(t, review.Classification.ClarificationQuestion)
	assert.Equal(t, clarifyDetailsClarification, *review.Classification.ClarificationQuestion)

	entries, err := st.ListLog(ctx, review.CaptureID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogStatusNeedsReview, entries[0].Status)
}

func TestCapture_InvalidDeclaredTypeFallsBackToAdmin(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}

	ai.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"status": "filed", "type": "meeting", "title": "x", "confidence": 0.2, "links": [], "record": null}`), nil).Once()

	p, _ := newTestPipeline(t, ai)

	out, err := p.Capture(ctx, captureInput("some note"))
	require.NoError(t, err)

	review, ok := out.(*NeedsReview)
	require.True(t, ok)
	assert.Equal(t, model.RecordTypeAdmin, review.Classification.Type)
}

func TestCapture_EveryInvocationAppendsExactlyOneEntry(t *testing.T) {
	ctx := context.Background()
	ai := &mockAnthropicClient{}

	ai.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{
			"status": "filed", "type": "idea", "title": "Plant app",
			"confidence": 0.8, "links": [],
			"record": {"schema_version": "1.0", "type": "idea", "title": "Plant app", "confidence": 0.8}
		}`), nil)

	p, st := newTestPipeline(t, ai)

	var captureIDs []string
	for i := 0; i < 3; i++ {
		out, err := p.Capture(ctx, captureInput("app that schedules plant watering"))
		require.NoError(t, err)
		filed := out.(*Filed)
		captureIDs = append(captureIDs, filed.CaptureID)
	}

	for _, id := range captureIDs {
		entries, err := st.ListLog(ctx, id)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}
}
