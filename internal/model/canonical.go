package model

// SchemaVersion is the only accepted canonical record schema version.
const SchemaVersion = "1.0"

// EmptyRecordTitle is the sentinel title used for needs_review placeholders.
const EmptyRecordTitle = "Needs review"

// RecordType identifies which nested bucket of a canonical record is active.
type RecordType string

const (
	RecordTypePerson  RecordType = "person"
	RecordTypeProject RecordType = "project"
	RecordTypeIdea    RecordType = "idea"
	RecordTypeAdmin   RecordType = "admin"
)

// AllRecordTypes returns every valid record type.
func AllRecordTypes() []RecordType {
	return []RecordType{RecordTypePerson, RecordTypeProject, RecordTypeIdea, RecordTypeAdmin}
}

// ValidRecordType reports whether t is one of the four record types.
func ValidRecordType(t RecordType) bool {
	switch t {
	case RecordTypePerson, RecordTypeProject, RecordTypeIdea, RecordTypeAdmin:
		return true
	}
	return false
}

// ProjectStatus is the lifecycle state of a project bucket.
type ProjectStatus string

const (
	ProjectStatusActive  ProjectStatus = "active"
	ProjectStatusWaiting ProjectStatus = "waiting"
	ProjectStatusBlocked ProjectStatus = "blocked"
	ProjectStatusSomeday ProjectStatus = "someday"
	ProjectStatusDone    ProjectStatus = "done"
)

// TaskStatus is the state of an admin task bucket.
type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "open"
	TaskStatusDone TaskStatus = "done"
)

// CanonicalRecord is the single record shape shared by classification output,
// correction output, API payloads, and persisted rows. All four buckets are
// always present; the three inactive ones hold nulls and defaults.
type CanonicalRecord struct {
	SchemaVersion         string        `json:"schema_version"`
	Type                  RecordType    `json:"type"`
	Title                 string        `json:"title"`
	Confidence            float64       `json:"confidence"`
	ClarificationQuestion *string       `json:"clarification_question"`
	Links                 []string      `json:"links"`
	Person                PersonFields  `json:"person"`
	Project               ProjectFields `json:"project"`
	Idea                  IdeaFields    `json:"idea"`
	Admin                 AdminFields   `json:"admin"`
}

// PersonFields is the person bucket.
type PersonFields struct {
	PersonName *string `json:"person_name"`
	Context    *string `json:"context"`
	FollowUp   *string `json:"follow_up"`
}

// ProjectFields is the project bucket.
type ProjectFields struct {
	ProjectName   *string       `json:"project_name"`
	ProjectStatus ProjectStatus `json:"project_status"`
	NextAction    *string       `json:"next_action"`
	Notes         *string       `json:"notes"`
}

// IdeaFields is the idea bucket.
type IdeaFields struct {
	IdeaOneLiner *string `json:"idea_one_liner"`
	Notes        *string `json:"notes"`
}

// AdminFields is the admin bucket. DueDate is a strict "YYYY-MM-DD" date or
// null; relative dates are never stored.
type AdminFields struct {
	Task       *string    `json:"task"`
	DueDate    *string    `json:"due_date"`
	TaskStatus TaskStatus `json:"task_status"`
	Notes      *string    `json:"notes"`
}

// BuildEmptyRecord produces a fully-normalized, always-valid placeholder
// record for needs_review outcomes, so correction requests always have a
// well-formed existing_record to operate on even when nothing was filed.
func BuildEmptyRecord(t RecordType, confidence float64, clarification string) *CanonicalRecord {
	if !ValidRecordType(t) {
		t = RecordTypeAdmin
	}
	var q *string
	if clarification != "" {
		q = &clarification
	}
	return &CanonicalRecord{
		SchemaVersion:         SchemaVersion,
		Type:                  t,
		Title:                 EmptyRecordTitle,
		Confidence:            ClampConfidence(confidence),
		ClarificationQuestion: q,
		Links:                 []string{},
		Project:               ProjectFields{ProjectStatus: ProjectStatusActive},
		Admin:                 AdminFields{TaskStatus: TaskStatusOpen},
	}
}

// ClampConfidence pins a confidence value into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
