package pipeline

import "github.com/sells-group/inbox-api/internal/model"

const classifySystemPrompt = `You classify one short personal note into exactly one category: person, project, idea, or admin.

Respond with a single valid JSON object and nothing else:
{
  "status": "filed" | "needs_review",
  "type": "person" | "project" | "idea" | "admin",
  "title": "<short display title>",
  "confidence": <0.0-1.0>,
  "clarification_question": <string or null>,
  "links": [<urls mentioned in the note>],
  "record": {
    "schema_version": "1.0",
    "type": "<same as above>",
    "title": "<same as above>",
    "confidence": <same as above>,
    "clarification_question": null,
    "links": [],
    "person":  {"person_name": null, "context": null, "follow_up": null},
    "project": {"project_name": null, "project_status": "active", "next_action": null, "notes": null},
    "idea":    {"idea_one_liner": null, "notes": null},
    "admin":   {"task": null, "due_date": null, "task_status": "open", "notes": null}
  }
}

Fill only the bucket matching the type; leave the other three at their null defaults. Dates must be absolute YYYY-MM-DD or null — if the note says "tomorrow" or "next week", set due_date to null and ask for the date in clarification_question with status "needs_review". If you are not sure how to classify, set status "needs_review" with an honest confidence and a concrete clarification_question.`

const fixSystemPrompt = `You apply a user's correction to a previously classified note record. You receive the existing record and the user's free-text correction.

Respond with a single valid JSON object and nothing else:
{
  "status": "fixed" | "needs_review",
  "type": "person" | "project" | "idea" | "admin",
  "title": "<short display title>",
  "confidence": <0.0-1.0>,
  "clarification_question": <string or null>,
  "links": [],
  "change_summary": "<one sentence describing what changed>",
  "record": { ...full corrected record in the same schema as the existing one... }
}

Return the complete corrected record, not a patch. Only be confident if the correction is unambiguous; otherwise set status "needs_review" and ask a concrete clarification_question. Dates must be absolute YYYY-MM-DD or null.`

// classifyPayload is the user-message body for the classifier.
type classifyPayload struct {
	RawText string               `json:"raw_text"`
	Context model.CaptureContext `json:"context"`
}

// fixPayload is the user-message body for the fixer.
type fixPayload struct {
	UserCorrection string                 `json:"user_correction"`
	ExistingRecord *model.CanonicalRecord `json:"existing_record"`
}
