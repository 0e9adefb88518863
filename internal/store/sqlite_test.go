package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inbox-api/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testCapture(raw string) *model.Capture {
	return &model.Capture{
		ID:         uuid.New().String(),
		RawText:    raw,
		Context:    model.CaptureContext{URL: "https://example.com", PageTitle: "Example", SelectionIsPresent: true},
		CapturedAt: time.Now().UTC().Truncate(time.Second),
		Client:     model.ClientMeta{App: "ext", Version: "0.3.1", DeviceID: "dev-1", Timezone: "Europe/Berlin"},
	}
}

func testRecord(captureID string) *model.Record {
	canonical := model.BuildEmptyRecord(model.RecordTypeIdea, 0.8, "")
	canonical.Title = "Plant watering app"
	return &model.Record{
		ID:         uuid.New().String(),
		CaptureID:  captureID,
		Type:       model.RecordTypeIdea,
		Title:      canonical.Title,
		Confidence: 0.8,
		Canonical:  *canonical,
	}
}

func filedEntry(captureID string, rec *model.Record) *model.LogEntry {
	return &model.LogEntry{
		ID:         ulid.Make().String(),
		CaptureID:  captureID,
		Action:     model.LogActionFiled,
		Status:     model.LogStatusFiled,
		Confidence: rec.Confidence,
		RecordID:   &rec.ID,
		FiledType:  &rec.Type,
		FiledTitle: &rec.Title,
	}
}

func reviewEntry(captureID string, clarification string) *model.LogEntry {
	return &model.LogEntry{
		ID:            ulid.Make().String(),
		CaptureID:     captureID,
		Action:        model.LogActionNeedsReview,
		Status:        model.LogStatusNeedsReview,
		Confidence:    0.3,
		Clarification: &clarification,
	}
}

func TestSQLite_CaptureRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	c := testCapture("Met Sarah at the conference")
	require.NoError(t, st.CreateCapture(ctx, c))

	got, err := st.GetCapture(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.RawText, got.RawText)
	assert.Equal(t, c.Context, got.Context)
	assert.Equal(t, c.Client, got.Client)
	assert.WithinDuration(t, c.CapturedAt, got.CapturedAt, time.Second)
}

func TestSQLite_GetCaptureNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetCapture(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_FileRecordAssignsSeq(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	c := testCapture("app idea")
	require.NoError(t, st.CreateCapture(ctx, c))

	rec := testRecord(c.ID)
	entry := filedEntry(c.ID, rec)
	require.NoError(t, st.FileRecord(ctx, rec, entry))
	assert.Greater(t, entry.Seq, int64(0), "seq must be assigned inside the transaction")

	got, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Confidence, got.Confidence)
	assert.Equal(t, rec.Canonical.Type, got.Canonical.Type)
}

func TestSQLite_SeqStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	c := testCapture("note")
	require.NoError(t, st.CreateCapture(ctx, c))

	var last int64
	for i := 0; i < 5; i++ {
		entry := reviewEntry(c.ID, "please split")
		require.NoError(t, st.AppendLog(ctx, entry))
		assert.Greater(t, entry.Seq, last)
		last = entry.Seq
	}
}

func TestSQLite_UpdateRecordNotFound(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	c := testCapture("note")
	require.NoError(t, st.CreateCapture(ctx, c))

	rec := testRecord(c.ID)
	err := st.UpdateRecord(ctx, rec, filedEntry(c.ID, rec))
	assert.ErrorIs(t, err, ErrNotFound)

	// The log append must not survive the rolled-back transaction.
	entries, err := st.ListLog(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_ListLogOldestFirst(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	c := testCapture("note")
	require.NoError(t, st.CreateCapture(ctx, c))

	first := reviewEntry(c.ID, "what did you mean?")
	require.NoError(t, st.AppendLog(ctx, first))

	rec := testRecord(c.ID)
	second := filedEntry(c.ID, rec)
	second.Action = model.LogActionFixed
	require.NoError(t, st.FileRecord(ctx, rec, second))

	entries, err := st.ListLog(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LogActionNeedsReview, entries[0].Action)
	assert.Equal(t, model.LogActionFixed, entries[1].Action)
	require.NotNil(t, entries[0].Clarification)
	assert.Equal(t, "what did you mean?", *entries[0].Clarification)
	require.NotNil(t, entries[1].RecordID)
	assert.Equal(t, rec.ID, *entries[1].RecordID)
}

func TestSQLite_ListRecentShowsLatestStateOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	c := testCapture("garage renovation")
	require.NoError(t, st.CreateCapture(ctx, c))

	// needs_review, then filed via fix, then fixed again: one feed item,
	// reflecting the newest entry.
	require.NoError(t, st.AppendLog(ctx, reviewEntry(c.ID, "which garage?")))

	rec := testRecord(c.ID)
	require.NoError(t, st.FileRecord(ctx, rec, filedEntry(c.ID, rec)))

	rec.Title = "Garage renovation phase 2"
	final := filedEntry(c.ID, rec)
	final.Action = model.LogActionFixed
	require.NoError(t, st.UpdateRecord(ctx, rec, final))

	items, err := st.ListRecent(ctx, 20, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, c.ID, items[0].CaptureID)
	assert.Equal(t, model.LogStatusFiled, items[0].Status)
	require.NotNil(t, items[0].Title)
	assert.Equal(t, "Garage renovation phase 2", *items[0].Title)
	assert.Equal(t, final.Seq, items[0].Seq)
}

func TestSQLite_ListRecentPagination(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	var captureIDs []string
	for i := 0; i < 3; i++ {
		c := testCapture("note " + string(rune('a'+i)))
		require.NoError(t, st.CreateCapture(ctx, c))
		rec := testRecord(c.ID)
		require.NoError(t, st.FileRecord(ctx, rec, filedEntry(c.ID, rec)))
		captureIDs = append(captureIDs, c.ID)
	}

	page1, err := st.ListRecent(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, captureIDs[2], page1[0].CaptureID, "newest first")
	assert.Equal(t, captureIDs[1], page1[1].CaptureID)
	assert.Greater(t, page1[0].Seq, page1[1].Seq)

	cursor := page1[1].Seq
	page2, err := st.ListRecent(ctx, 2, &cursor)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, captureIDs[0], page2[0].CaptureID)
}

func TestSQLite_RawTextPreviewTruncated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	long := strings.Repeat("x", 300)
	c := testCapture(long)
	require.NoError(t, st.CreateCapture(ctx, c))
	require.NoError(t, st.AppendLog(ctx, reviewEntry(c.ID, "split this up")))

	items, err := st.ListRecent(ctx, 20, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Len(t, items[0].RawTextPreview, model.PreviewLen)

	// The stored capture keeps the full text.
	got, err := st.GetCapture(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, long, got.RawText)
}
