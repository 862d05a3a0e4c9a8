// Package sqlstore implements the store contract over database/sql for
// Postgres (pgx) and SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/sessionguard/store"
	"github.com/MrEthical07/sessionguard/store/sqlstore/migrations"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// Store implements store.Store. Transactions opened by WithTx ride in the
// context so every repository call made with that context joins them.
type Store struct {
	db      *sql.DB
	dialect Dialect
	txOpts  *sql.TxOptions

	users         *userRepo
	refreshTokens *refreshTokenRepo
	requests      *requestRepo
	attempts      *attemptRepo
}

var _ store.Store = (*Store)(nil)

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect) *Store {
	s := &Store{db: db, dialect: dialect}
	if dialect == Postgres {
		s.txOpts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	s.users = &userRepo{s: s}
	s.refreshTokens = &refreshTokenRepo{s: s}
	s.requests = &requestRepo{s: s}
	s.attempts = &attemptRepo{s: s}
	return s
}

// Open opens a database from a URL: postgres://, postgresql:// or
// sqlite://<path>.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	dialect, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}

	return New(db, dialect), nil
}

func parseURL(databaseURL string) (Dialect, string, error) {
	raw := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return Postgres, raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return SQLite, "", errors.New("sqlite path is required")
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return SQLite, "file:" + path + sep + sqlitePragmas, nil
	default:
		return Postgres, "", fmt.Errorf("unsupported database url %q", raw)
	}
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(s.dialect.gooseDialect(), s.db, migrations.FS)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// DB returns the raw handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect the store was opened with.
func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Users() store.Users                 { return s.users }
func (s *Store) RefreshTokens() store.RefreshTokens { return s.refreshTokens }
func (s *Store) Requests() store.Requests           { return s.requests }
func (s *Store) AttemptCounts() store.AttemptCounts { return s.attempts }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.db, s.txOpts, fn)
}

func (s *Store) conn(ctx context.Context) DBTX {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.conn(ctx).ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, s.mapError(err)
	}
	return res, nil
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) mapError(err error) error {
	if s.dialect.isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return fmt.Errorf("db error: %w", err)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
