package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/inbox-api/internal/db"
	"github.com/sells-group/inbox-api/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_capture": `INSERT INTO captures (id, raw_text, context, captured_at, client, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_capture":    `SELECT id, raw_text, context, captured_at, client, created_at FROM captures WHERE id = $1`,
	"get_record":     `SELECT id, capture_id, type, title, confidence, canonical, created_at, updated_at FROM records WHERE id = $1`,
	"insert_log":     `INSERT INTO inbox_log (id, capture_id, action, status, confidence, clarification, record_id, filed_type, filed_title, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING seq`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// The seq column is a transaction-scoped identity: strictly monotonic under
// concurrent writers without any application-side locking.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	raw_text    TEXT NOT NULL,
	context     JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	client      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	capture_id TEXT NOT NULL REFERENCES captures(id),
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	canonical  JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS inbox_log (
	seq           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id            TEXT NOT NULL,
	capture_id    TEXT NOT NULL REFERENCES captures(id),
	action        TEXT NOT NULL,
	status        TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	clarification TEXT,
	record_id     TEXT,
	filed_type    TEXT,
	filed_title   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_capture_id ON records(capture_id);
CREATE INDEX IF NOT EXISTS idx_inbox_log_capture_id ON inbox_log(capture_id);
CREATE INDEX IF NOT EXISTS idx_inbox_log_capture_seq ON inbox_log(capture_id, seq DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCapture(ctx context.Context, c *model.Capture) error {
	c.CreatedAt = time.Now().UTC()

	contextJSON, err := json.Marshal(c.Context)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal capture context")
	}
	clientJSON, err := json.Marshal(c.Client)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal client meta")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO captures (id, raw_text, context, captured_at, client, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.RawText, contextJSON, c.CapturedAt.UTC(), clientJSON, c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert capture")
}

func (s *PostgresStore) GetCapture(ctx context.Context, id string) (*model.Capture, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, raw_text, context, captured_at, client, created_at FROM captures WHERE id = $1`,
		id,
	)

	var c model.Capture
	var contextJSON, clientJSON []byte
	err := row.Scan(&c.ID, &c.RawText, &contextJSON, &c.CapturedAt, &clientJSON, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: capture %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get capture")
	}
	if err := json.Unmarshal(contextJSON, &c.Context); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal capture context")
	}
	if err := json.Unmarshal(clientJSON, &c.Client); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal client meta")
	}
	return &c, nil
}

func (s *PostgresStore) FileRecord(ctx context.Context, rec *model.Record, entry *model.LogEntry) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	canonicalJSON, err := json.Marshal(rec.Canonical)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal canonical record")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin file record")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO records (id, capture_id, type, title, confidence, canonical, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.CaptureID, string(rec.Type), rec.Title, rec.Confidence, canonicalJSON, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert record")
	}

	if err := appendLogPgTx(ctx, tx, entry); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit file record")
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, rec *model.Record, entry *model.LogEntry) error {
	rec.UpdatedAt = time.Now().UTC()

	canonicalJSON, err := json.Marshal(rec.Canonical)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal canonical record")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update record")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE records SET type = $1, title = $2, confidence = $3, canonical = $4, updated_at = $5 WHERE id = $6`,
		string(rec.Type), rec.Title, rec.Confidence, canonicalJSON, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "record %s", rec.ID)
	}

	if err := appendLogPgTx(ctx, tx, entry); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update record")
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, capture_id, type, title, confidence, canonical, created_at, updated_at FROM records WHERE id = $1`,
		id,
	)

	var r model.Record
	var canonicalJSON []byte
	err := row.Scan(&r.ID, &r.CaptureID, &r.Type, &r.Title, &r.Confidence, &canonicalJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: record %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get record")
	}
	if err := json.Unmarshal(canonicalJSON, &r.Canonical); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal canonical record")
	}
	return &r, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry *model.LogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append log")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := appendLogPgTx(ctx, tx, entry); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit append log")
}

func appendLogPgTx(ctx context.Context, tx pgx.Tx, entry *model.LogEntry) error {
	entry.CreatedAt = time.Now().UTC()

	var filedType *string
	if entry.FiledType != nil {
		s := string(*entry.FiledType)
		filedType = &s
	}

	err := tx.QueryRow(ctx,
		`INSERT INTO inbox_log (id, capture_id, action, status, confidence, clarification, record_id, filed_type, filed_title, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING seq`,
		entry.ID, entry.CaptureID, string(entry.Action), string(entry.Status), entry.Confidence,
		entry.Clarification, entry.RecordID, filedType, entry.FiledTitle, entry.CreatedAt,
	).Scan(&entry.Seq)
	return eris.Wrap(err, "postgres: insert log entry")
}

func (s *PostgresStore) ListLog(ctx context.Context, captureID string) ([]model.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, capture_id, action, status, confidence, clarification, record_id, filed_type, filed_title, created_at
		 FROM inbox_log WHERE capture_id = $1 ORDER BY seq ASC`,
		captureID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list log")
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var action, status string
		var filedType *string
		err := rows.Scan(&e.Seq, &e.ID, &e.CaptureID, &action, &status, &e.Confidence,
			&e.Clarification, &e.RecordID, &filedType, &e.FiledTitle, &e.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan log entry")
		}
		e.Action = model.LogAction(action)
		e.Status = model.LogStatus(status)
		if filedType != nil {
			t := model.RecordType(*filedType)
			e.FiledType = &t
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list log iterate")
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int, cursor *int64) ([]model.FeedItem, error) {
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
		query += ` WHERE l.seq < $1 ORDER BY l.seq DESC LIMIT $2`
		args = append(args, *cursor, limit)
	} else {
		query += ` ORDER BY l.seq DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recent")
	}
	defer rows.Close()

	var items []model.FeedItem
	for rows.Next() {
		var it model.FeedItem
		var rawText, status string
		var filedType *string
		var confidence float64
		err := rows.Scan(&it.Seq, &it.LogID, &it.CaptureID, &it.CapturedAt, &rawText,
			&status, &filedType, &it.Title, &confidence, &it.RecordID)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan feed item")
		}
		it.RawTextPreview = model.Preview(rawText)
		it.Status = model.LogStatus(status)
		it.Confidence = &confidence
		if filedType != nil {
			t := model.RecordType(*filedType)
			it.Type = &t
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list recent iterate")
}
