package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/inbox-api/internal/model"
	"github.com/sells-group/inbox-api/internal/pipeline"
)

// Wire DTOs. Request validation happens here, before any capture is
// accepted, so a 400 never leaves a log entry behind.

type clientMetaDTO struct {
	App      string `json:"app"`
	Version  string `json:"version"`
	DeviceID string `json:"device_id"`
	Timezone string `json:"timezone"`
}

type captureContextDTO struct {
	URL                string `json:"url"`
	PageTitle          string `json:"page_title"`
	SelectedText       string `json:"selected_text"`
	SelectionIsPresent bool   `json:"selection_is_present"`
}

type captureRequest struct {
	Client  clientMetaDTO `json:"client"`
	Capture struct {
		RawText    string            `json:"raw_text"`
		CapturedAt string            `json:"captured_at"`
		Context    captureContextDTO `json:"context"`
	} `json:"capture"`
}

type fixRequest struct {
	Client clientMetaDTO `json:"client"`
	Fix    struct {
		CaptureID      string                 `json:"capture_id"`
		InboxLogID     string                 `json:"inbox_log_id"`
		RecordID       *string                `json:"record_id"`
		UserCorrection string                 `json:"user_correction"`
		ExistingRecord *model.CanonicalRecord `json:"existing_record"`
	} `json:"fix"`
}

type classificationDTO struct {
	Type                  model.RecordType       `json:"type"`
	Title                 string                 `json:"title"`
	Confidence            float64                `json:"confidence"`
	ClarificationQuestion *string                `json:"clarification_question"`
	Links                 []string               `json:"links"`
	Record                *model.CanonicalRecord `json:"record"`
}

type storedRecordDTO struct {
	RecordID   string           `json:"record_id"`
	Type       model.RecordType `json:"type"`
	Confidence float64          `json:"confidence"`
}

type captureResponse struct {
	Status         string            `json:"status"`
	NextStep       string            `json:"next_step"`
	CaptureID      string            `json:"capture_id"`
	InboxLogID     string            `json:"inbox_log_id"`
	Classification classificationDTO `json:"classification"`
	StoredRecord   *storedRecordDTO  `json:"stored_record"`
}

type fixResponse struct {
	Status         string            `json:"status"`
	NextStep       string            `json:"next_step"`
	CaptureID      string            `json:"capture_id"`
	InboxLogID     string            `json:"inbox_log_id"`
	Classification classificationDTO `json:"classification"`
	UpdatedRecord  *storedRecordDTO  `json:"updated_record"`
	ChangeSummary  *string           `json:"change_summary"`
}

type recentResponse struct {
	Items      []model.FeedItem `json:"items"`
	NextCursor *string          `json:"next_cursor"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Capture.RawText) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "capture.raw_text is required")
		return
	}
	capturedAt, err := time.Parse(time.RFC3339, req.Capture.CapturedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "capture.captured_at must be an ISO datetime")
		return
	}

	out, err := s.svc.Capture(r.Context(), pipeline.CaptureInput{
		Client: model.ClientMeta{
			App:      req.Client.App,
			Version:  req.Client.Version,
			DeviceID: req.Client.DeviceID,
			Timezone: req.Client.Timezone,
		},
		RawText:    req.Capture.RawText,
		CapturedAt: capturedAt,
		Context: model.CaptureContext{
			URL:                req.Capture.Context.URL,
			PageTitle:          req.Capture.Context.PageTitle,
			SelectedText:       req.Capture.Context.SelectedText,
			SelectionIsPresent: req.Capture.Context.SelectionIsPresent,
		},
	})
	if err != nil {
		zap.L().Error("server: capture failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
		return
	}

	switch o := out.(type) {
	case *pipeline.Filed:
		writeJSON(w, http.StatusOK, captureResponse{
			Status:         "filed",
			NextStep:       "show_confirmation",
			CaptureID:      o.CaptureID,
			InboxLogID:     o.LogID,
			Classification: toClassificationDTO(o.Classification),
			StoredRecord: &storedRecordDTO{
				RecordID:   o.RecordID,
				Type:       o.Classification.Type,
				Confidence: o.Classification.Confidence,
			},
		})
	case *pipeline.NeedsReview:
		writeJSON(w, http.StatusOK, captureResponse{
			Status:         "needs_review",
			NextStep:       "show_needs_review",
			CaptureID:      o.CaptureID,
			InboxLogID:     o.LogID,
			Classification: toClassificationDTO(o.Classification),
			StoredRecord:   nil,
		})
	default:
		zap.L().Error("server: unexpected capture outcome")
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	var req fixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Fix.CaptureID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "fix.capture_id is required")
		return
	}
	if strings.TrimSpace(req.Fix.UserCorrection) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "fix.user_correction is required")
		return
	}

	out, err := s.svc.Fix(r.Context(), pipeline.FixInput{
		Client: model.ClientMeta{
			App:      req.Client.App,
			Version:  req.Client.Version,
			DeviceID: req.Client.DeviceID,
			Timezone: req.Client.Timezone,
		},
		CaptureID:      req.Fix.CaptureID,
		PrevLogID:      req.Fix.InboxLogID,
		RecordID:       req.Fix.RecordID,
		UserCorrection: req.Fix.UserCorrection,
		ExistingRecord: req.Fix.ExistingRecord,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrRecordNotFound):
			writeError(w, http.StatusBadRequest, "bad_request", "could not find existing record")
		case errors.Is(err, pipeline.ErrCaptureNotFound):
			writeError(w, http.StatusBadRequest, "bad_request", "could not find capture")
		default:
			zap.L().Error("server: fix failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
		}
		return
	}

	switch o := out.(type) {
	case *pipeline.Fixed:
		writeJSON(w, http.StatusOK, fixResponse{
			Status:         "fixed",
			NextStep:       "show_confirmation",
			CaptureID:      o.CaptureID,
			InboxLogID:     o.LogID,
			Classification: toClassificationDTO(o.Classification),
			UpdatedRecord: &storedRecordDTO{
				RecordID:   o.RecordID,
				Type:       o.Classification.Type,
				Confidence: o.Classification.Confidence,
			},
			ChangeSummary: o.ChangeSummary,
		})
	case *pipeline.NeedsReview:
		writeJSON(w, http.StatusOK, fixResponse{
			Status:         "needs_review",
			NextStep:       "show_needs_review",
			CaptureID:      o.CaptureID,
			InboxLogID:     o.LogID,
			Classification: toClassificationDTO(o.Classification),
			UpdatedRecord:  nil,
			ChangeSummary:  nil,
		})
	default:
		zap.L().Error("server: unexpected fix outcome")
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}

// Page size bounds for /recent.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var cursor *int64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "cursor must be a sequence number")
			return
		}
		cursor = &n
	}

	items, err := s.svc.Recent(r.Context(), limit, cursor)
	if err != nil {
		zap.L().Error("server: recent failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
		return
	}

	resp := recentResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []model.FeedItem{}
	}
	// A full page may have more behind it; a short page is the end.
	if len(items) == limit {
		last := strconv.FormatInt(items[len(items)-1].Seq, 10)
		resp.NextCursor = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func toClassificationDTO(c pipeline.Classification) classificationDTO {
	links := c.Links
	if links == nil {
		links = []string{}
	}
	return classificationDTO{
		Type:                  c.Type,
		Title:                 c.Title,
		Confidence:            c.Confidence,
		ClarificationQuestion: c.ClarificationQuestion,
		Links:                 links,
		Record:                c.Record,
	}
}
