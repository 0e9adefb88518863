package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/inbox-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// The inbox_log seq column is AUTOINCREMENT: strictly increasing, never
// reused, assigned under SQLite's single-writer lock. Entries are never
// updated or deleted.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	raw_text    TEXT NOT NULL,
	context     TEXT NOT NULL,
	captured_at DATETIME NOT NULL,
	client      TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	capture_id TEXT NOT NULL REFERENCES captures(id),
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	confidence REAL NOT NULL,
	canonical  TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS inbox_log (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL,
	capture_id    TEXT NOT NULL REFERENCES captures(id),
	action        TEXT NOT NULL,
	status        TEXT NOT NULL,
	confidence    REAL NOT NULL,
	clarification TEXT,
	record_id     TEXT,
	filed_type    TEXT,
	filed_title   TEXT,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_capture_id ON records(capture_id);
CREATE INDEX IF NOT EXISTS idx_inbox_log_capture_id ON inbox_log(capture_id);
CREATE INDEX IF NOT EXISTS idx_inbox_log_capture_seq ON inbox_log(capture_id, seq DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCapture(ctx context.Context, c *model.Capture) error {
	c.CreatedAt = time.Now().UTC()

	contextJSON, err := json.Marshal(c.Context)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal capture context")
	}
	clientJSON, err := json.Marshal(c.Client)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal client meta")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO captures (id, raw_text, context, captured_at, client, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.RawText, string(contextJSON), c.CapturedAt.UTC(), string(clientJSON), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert capture")
}

func (s *SQLiteStore) GetCapture(ctx context.Context, id string) (*model.Capture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, raw_text, context, captured_at, client, created_at FROM captures WHERE id = ?`,
		id,
	)

	var c model.Capture
	var contextJSON, clientJSON string
	err := row.Scan(&c.ID, &c.RawText, &contextJSON, &c.CapturedAt, &clientJSON, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: capture %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get capture")
	}
	if err := json.Unmarshal([]byte(contextJSON), &c.Context); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal capture context")
	}
	if err := json.Unmarshal([]byte(clientJSON), &c.Client); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal client meta")
	}
	return &c, nil
}

func (s *SQLiteStore) FileRecord(ctx context.Context, rec *model.Record, entry *model.LogEntry) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	canonicalJSON, err := json.Marshal(rec.Canonical)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal canonical record")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin file record")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, capture_id, type, title, confidence, canonical, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CaptureID, string(rec.Type), rec.Title, rec.Confidence, string(canonicalJSON), now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert record")
	}

	if err := appendLogTx(ctx, tx, entry); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit file record")
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *model.Record, entry *model.LogEntry) error {
	rec.UpdatedAt = time.Now().UTC()

	canonicalJSON, err := json.Marshal(rec.Canonical)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal canonical record")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update record")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET type = ?, title = ?, confidence = ?, canonical = ?, updated_at = ? WHERE id = ?`,
		string(rec.Type), rec.Title, rec.Confidence, string(canonicalJSON), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", rec.ID)
	}
	if err := checkRowsAffected(res, "record", rec.ID); err != nil {
		return err
	}

	if err := appendLogTx(ctx, tx, entry); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update record")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, capture_id, type, title, confidence, canonical, created_at, updated_at FROM records WHERE id = ?`,
		id,
	)

	var r model.Record
	var canonicalJSON string
	err := row.Scan(&r.ID, &r.CaptureID, &r.Type, &r.Title, &r.Confidence, &canonicalJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: record %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get record")
	}
	if err := json.Unmarshal([]byte(canonicalJSON), &r.Canonical); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal canonical record")
	}
	return &r, nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, entry *model.LogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append log")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := appendLogTx(ctx, tx, entry); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append log")
}

func appendLogTx(ctx context.Context, tx *sql.Tx, entry *model.LogEntry) error {
	entry.CreatedAt = time.Now().UTC()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO inbox_log (id, capture_id, action, status, confidence, clarification, record_id, filed_type, filed_title, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CaptureID, string(entry.Action), string(entry.Status), entry.Confidence,
		entry.Clarification, entry.RecordID, filedTypeArg(entry.FiledType), entry.FiledTitle, entry.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert log entry")
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: log entry seq")
	}
	entry.Seq = seq
	return nil
}

func filedTypeArg(t *model.RecordType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func (s *SQLiteStore) ListLog(ctx context.Context, captureID string) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, capture_id, action, status, confidence, clarification, record_id, filed_type, filed_title, created_at
		 FROM inbox_log WHERE capture_id = ? ORDER BY seq ASC`,
		captureID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list log")
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list log iterate")
}

// ListRecent pages across the latest entry per capture (max seq group-by),
// not raw entries, so a capture corrected three times appears exactly once.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int, cursor *int64) ([]model.FeedItem, error) {
	query := `
		SELECT l.seq, l.id, l.capture_id, c.captured_at, c.raw_text,
		       l.status, l.filed_type, l.filed_title, l.confidence, l.record_id
		FROM inbox_log l
		JOIN (
			SELECT capture_id, MAX(seq) AS max_seq FROM inbox_log GROUP BY capture_id
		) latest ON latest.capture_id = l.capture_id AND latest.max_seq = l.seq
		JOIN captures c ON c.id = l.capture_id`
	var args []any

	if cursor != nil {
		query += ` WHERE l.seq < ?`
		args = append(args, *cursor)
	}
	query += ` ORDER BY l.seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recent")
	}
	defer rows.Close()

	var items []model.FeedItem
	for rows.Next() {
		var it model.FeedItem
		var rawText string
		var filedType, filedTitle, recordID sql.NullString
		var confidence float64
		err := rows.Scan(&it.Seq, &it.LogID, &it.CaptureID, &it.CapturedAt, &rawText,
			&it.Status, &filedType, &filedTitle, &confidence, &recordID)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feed item")
		}
		it.RawTextPreview = model.Preview(rawText)
		it.Confidence = &confidence
		if filedType.Valid {
			t := model.RecordType(filedType.String)
			it.Type = &t
		}
		if filedTitle.Valid {
			it.Title = &filedTitle.String
		}
		if recordID.Valid {
			it.RecordID = &recordID.String
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list recent iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLogEntry(row scannable) (*model.LogEntry, error) {
	var e model.LogEntry
	var clarification, recordID, filedType, filedTitle sql.NullString

	err := row.Scan(&e.Seq, &e.ID, &e.CaptureID, &e.Action, &e.Status, &e.Confidence,
		&clarification, &recordID, &filedType, &filedTitle, &e.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan log entry")
	}
	if clarification.Valid {
		e.Clarification = &clarification.String
	}
	if recordID.Valid {
		e.RecordID = &recordID.String
	}
	if filedType.Valid {
		t := model.RecordType(filedType.String)
		e.FiledType = &t
	}
	if filedTitle.Valid {
		e.FiledTitle = &filedTitle.String
	}
	return &e, nil
}
