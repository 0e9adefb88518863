package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inbox-api/internal/model"
)

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock requires the expected
// argument count to match the actual call even when values are not asserted.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS captures").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateCapture(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO captures").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c := testCapture("a note")
	require.NoError(t, st.CreateCapture(context.Background(), c))
	assert.False(t, c.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRecordNotFound(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT (.+) FROM records WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCaptureNotFound(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT (.+) FROM captures WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetCapture(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendLogScansSeq(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO inbox_log").
		WithArgs(anyArgs(10)...).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(42)))
	mock.ExpectCommit()

	entry := &model.LogEntry{
		ID:         ulid.Make().String(),
		CaptureID:  "cap-1",
		Action:     model.LogActionNeedsReview,
		Status:     model.LogStatusNeedsReview,
		Confidence: 0.3,
	}
	require.NoError(t, st.AppendLog(context.Background(), entry))
	assert.Equal(t, int64(42), entry.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FileRecordTransactional(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO inbox_log").
		WithArgs(anyArgs(10)...).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(7)))
	mock.ExpectCommit()

	rec := testRecord("cap-1")
	entry := filedEntry("cap-1", rec)
	require.NoError(t, st.FileRecord(context.Background(), rec, entry))
	assert.Equal(t, int64(7), entry.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRecordNotFoundRollsBack(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE records SET").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	rec := testRecord("cap-1")
	err := st.UpdateRecord(context.Background(), rec, filedEntry("cap-1", rec))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
