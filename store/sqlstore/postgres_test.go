package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/sessionguard/store"
)

func newPostgresWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return New(db, Postgres), mock, db
}

func TestPostgres_CreateUserUsesPositionalArgs(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+users\s*\(.*\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7,\s*\$8\)$`
	mock.ExpectExec(q).
		WithArgs("u1", "a@example.com", "hash", false, false, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Users().Create(context.Background(), store.User{ID: "u1", Email: "a@example.com", PasswordHash: "hash", StrictMode: true})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_UniqueViolationMapsToConflict(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := s.Users().Create(context.Background(), store.User{ID: "u1", Email: "a@example.com", PasswordHash: "hash"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPostgres_OtherErrorsWrapped(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+jti\s*=\s*\$1$`).
		WithArgs("j1").
		WillReturnError(errors.New("db down"))

	_, err := s.RefreshTokens().DeleteByJTI(context.Background(), "j1")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if errors.Is(err, store.ErrConflict) {
		t.Fatalf("plain failure must not be a conflict")
	}
}

func TestPostgres_DeleteByJTIZeroRows(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+jti\s*=\s*\$1$`).
		WithArgs("j1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.RefreshTokens().DeleteByJTI(context.Background(), "j1")
	if err != nil {
		t.Fatalf("DeleteByJTI error: %v", err)
	}
	if ok {
		t.Fatalf("expected no row consumed")
	}
}

func TestPostgres_FindRequestExcludesDeleted(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*\s+FROM\s+self_service_requests\s+WHERE\s+kind\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2\s+AND\s+deleted_at\s+IS\s+NULL$`
	mock.ExpectQuery(q).
		WithArgs("recover", "u1").
		WillReturnError(sql.ErrNoRows)

	got, err := s.Requests().FindByUser(context.Background(), store.RequestRecover, "u1", false)
	if err != nil {
		t.Fatalf("FindByUser error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestPostgres_UpsertRequestOnConflict(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+self_service_requests\s*\(.*\)\s*VALUES\s*\(\$1,.*\$8,\s*NULL\)` +
		`\s+ON\s+CONFLICT\s*\(kind,\s*user_id\)\s+DO\s+UPDATE\s+SET\s+jti\s*=\s*excluded\.jti,.*deleted_at\s*=\s*NULL` +
		`\s+RETURNING\s+id,.*deleted_at$`
	rows := sqlmock.NewRows([]string{"id", "kind", "user_id", "jti", "token_hash", "pending_password_hash", "created_at", "updated_at", "deleted_at"}).
		AddRow("r-existing", "reset", "u1", "j2", "h2", "pending", int64(1_700_000_000_000), int64(1_700_000_060_000), nil)
	mock.ExpectQuery(q).
		WithArgs("r-new", "reset", "u1", "j2", "h2", "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := s.Requests().Upsert(context.Background(), store.Request{
		ID: "r-new", Kind: store.RequestReset, UserID: "u1", JTI: "j2", TokenHash: "h2", PendingPasswordHash: "pending",
	})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if got.ID != "r-existing" || got.JTI != "j2" || got.Deleted() {
		t.Fatalf("unexpected row: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_WithTxCommits(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+locked\s*=\s*\$1`).
		WithArgs(true, sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		return s.Users().SetLocked(ctx, "u1", true)
	})
	if err != nil {
		t.Fatalf("WithTx error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
