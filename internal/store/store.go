package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/inbox-api/internal/model"
)

// ErrNotFound is returned when a capture or record id does not exist.
// Callers check it with errors.Is.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the capture and fix pipelines.
// The inbox log is append-only: there is no update or delete for entries,
// and Seq assignment is strictly increasing even under concurrent writers.
type Store interface {
	// Captures
	CreateCapture(ctx context.Context, c *model.Capture) error
	GetCapture(ctx context.Context, id string) (*model.Capture, error)

	// Records. FileRecord inserts a new record, UpdateRecord replaces an
	// existing one wholesale; both append the given log entry in the same
	// transaction and set entry.Seq to the assigned sequence number.
	FileRecord(ctx context.Context, rec *model.Record, entry *model.LogEntry) error
	UpdateRecord(ctx context.Context, rec *model.Record, entry *model.LogEntry) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)

	// Inbox log
	AppendLog(ctx context.Context, entry *model.LogEntry) error
	ListLog(ctx context.Context, captureID string) ([]model.LogEntry, error)
	ListRecent(ctx context.Context, limit int, cursor *int64) ([]model.FeedItem, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
