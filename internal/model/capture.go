package model

import "time"

// ClientMeta identifies the submitting client.
type ClientMeta struct {
	App      string `json:"app"`
	Version  string `json:"version"`
	DeviceID string `json:"device_id"`
	Timezone string `json:"timezone"`
}

// CaptureContext carries optional page context from the extension.
// SelectionIsPresent records whether a selection existed at capture time,
// independent of whether the selected text itself was sent.
type CaptureContext struct {
	URL                string `json:"url"`
	PageTitle          string `json:"page_title"`
	SelectedText       string `json:"selected_text"`
	SelectionIsPresent bool   `json:"selection_is_present"`
}

// Capture is one raw user submission. RawText is stored verbatim and never
// altered; the row is immutable once created.
type Capture struct {
	ID         string         `json:"id"`
	RawText    string         `json:"raw_text"`
	Context    CaptureContext `json:"context"`
	CapturedAt time.Time      `json:"captured_at"`
	Client     ClientMeta     `json:"client"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Record is a filed canonical record tied to exactly one capture. Type,
// Title and Confidence are denormalized copies of the canonical JSON for
// querying. The correction pipeline replaces Canonical wholesale on each
// fix; there are no partial field patches.
type Record struct {
	ID         string          `json:"id"`
	CaptureID  string          `json:"capture_id"`
	Type       RecordType      `json:"type"`
	Title      string          `json:"title"`
	Confidence float64         `json:"confidence"`
	Canonical  CanonicalRecord `json:"canonical"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
