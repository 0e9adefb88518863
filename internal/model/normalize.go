package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var dueDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SchemaError reports every failing field path of an invalid canonical
// record. Its message is human-readable and doubles as the basis of a
// clarification question.
type SchemaError struct {
	Fields []string
}

func (e *SchemaError) Error() string {
	return "invalid canonical record: " + strings.Join(e.Fields, "; ")
}

// bucket field names, in canonical order.
var (
	personLeaves  = []string{"person_name", "context", "follow_up"}
	projectLeaves = []string{"project_name", "project_status", "next_action", "notes"}
	ideaLeaves    = []string{"idea_one_liner", "notes"}
	adminLeaves   = []string{"task", "due_date", "task_status", "notes"}
)

// Normalize applies defaulting rules to a raw record object before
// validation. It never fails and is idempotent: all four buckets exist
// afterwards, enum defaults are filled, every nullable leaf is an explicit
// null, and a non-numeric or out-of-range confidence is coerced to 0.0 so
// that any downstream threshold check fails closed.
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+8)
	for k, v := range raw {
		out[k] = v
	}

	if s, ok := out["schema_version"].(string); !ok || s == "" {
		out["schema_version"] = SchemaVersion
	}
	if _, ok := out["clarification_question"]; !ok {
		out["clarification_question"] = nil
	}
	if _, ok := out["links"]; !ok || out["links"] == nil {
		out["links"] = []any{}
	}

	conf, ok := out["confidence"].(float64)
	if !ok || conf < 0 || conf > 1 {
		zap.L().Warn("normalize: invalid confidence coerced to 0.0",
			zap.Any("confidence", out["confidence"]),
		)
		conf = 0.0
	}
	out["confidence"] = conf

	out["person"] = normalizeBucket(out["person"], personLeaves, nil)
	out["project"] = normalizeBucket(out["project"], projectLeaves, map[string]any{
		"project_status": string(ProjectStatusActive),
	})
	out["idea"] = normalizeBucket(out["idea"], ideaLeaves, nil)
	out["admin"] = normalizeBucket(out["admin"], adminLeaves, map[string]any{
		"task_status": string(TaskStatusOpen),
	})

	return out
}

// normalizeBucket ensures the bucket is an object, every leaf key is
// present (null if missing), and enum defaults are applied over falsy
// values.
func normalizeBucket(raw any, leaves []string, defaults map[string]any) map[string]any {
	src, _ := raw.(map[string]any)
	out := make(map[string]any, len(leaves))
	for _, leaf := range leaves {
		if v, ok := src[leaf]; ok {
			out[leaf] = v
		} else {
			out[leaf] = nil
		}
	}
	for leaf, def := range defaults {
		if s, ok := out[leaf].(string); !ok || s == "" {
			out[leaf] = def
		}
	}
	return out
}

// Validate decodes a normalized record object and checks it against the
// canonical schema. Returns a *SchemaError listing every failing field path.
func Validate(normalized map[string]any) (*CanonicalRecord, error) {
	buf, err := json.Marshal(normalized)
	if err != nil {
		return nil, &SchemaError{Fields: []string{"record: " + err.Error()}}
	}

	var rec CanonicalRecord
	if err := json.Unmarshal(buf, &rec); err != nil {
		return nil, &SchemaError{Fields: []string{"record: " + err.Error()}}
	}

	var fields []string
	if rec.SchemaVersion != SchemaVersion {
		fields = append(fields, fmt.Sprintf("schema_version: must be %q", SchemaVersion))
	}
	if !ValidRecordType(rec.Type) {
		fields = append(fields, fmt.Sprintf("type: %q is not one of person|project|idea|admin", rec.Type))
	}
	if strings.TrimSpace(rec.Title) == "" {
		fields = append(fields, "title: must be a non-empty string")
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		fields = append(fields, "confidence: must be in [0,1]")
	}
	if rec.Links == nil {
		fields = append(fields, "links: must be an array")
	}
	switch rec.Project.ProjectStatus {
	case ProjectStatusActive, ProjectStatusWaiting, ProjectStatusBlocked, ProjectStatusSomeday, ProjectStatusDone:
	default:
		fields = append(fields, fmt.Sprintf("project.project_status: %q is not a valid status", rec.Project.ProjectStatus))
	}
	switch rec.Admin.TaskStatus {
	case TaskStatusOpen, TaskStatusDone:
	default:
		fields = append(fields, fmt.Sprintf("admin.task_status: %q is not a valid status", rec.Admin.TaskStatus))
	}
	if rec.Admin.DueDate != nil && !dueDateRe.MatchString(*rec.Admin.DueDate) {
		fields = append(fields, "admin.due_date: must be an absolute YYYY-MM-DD date or null")
	}

	if len(fields) > 0 {
		return nil, &SchemaError{Fields: fields}
	}
	return &rec, nil
}

// SafeValidate normalizes and validates a raw record object. It never
// panics into the caller; every failure comes back as a *SchemaError.
func SafeValidate(raw map[string]any) (rec *CanonicalRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = &SchemaError{Fields: []string{fmt.Sprintf("record: %v", r)}}
		}
	}()
	return Validate(Normalize(raw))
}
