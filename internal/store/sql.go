// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	sentTable    = "sent_news"
	archiveTable = "news_archive"
	prefsTable   = "user_prefs"
)

var archiveColumns = []string{
	"fingerprint", "source", "category", "title", "summary", "link",
	"published_at", "analysis", "created_at",
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sent_news (
	fingerprint TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	sent_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS news_archive (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	link TEXT NOT NULL,
	published_at INTEGER NOT NULL,
	analysis TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	search_title TEXT NOT NULL,
	search_summary TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_prefs (
	user_id INTEGER PRIMARY KEY,
	language TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sent_news (
	fingerprint TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	sent_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS news_archive (
	id BIGSERIAL PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	link TEXT NOT NULL,
	published_at BIGINT NOT NULL,
	analysis TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	search_title TEXT NOT NULL,
	search_summary TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_prefs (
	user_id BIGINT PRIMARY KEY,
	language TEXT NOT NULL,
	updated_at BIGINT NOT NULL
);
`

// SQLStore is a [Store] backed by a SQL database. Times are stored as Unix
// seconds.
//
// Archived titles and summaries are also stored lowercased by Go in the
// search_title and search_summary columns, because SQLite's LOWER folds
// only ASCII letters.
type SQLStore struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewSQLiteStore opens the SQLite database at path and creates the tables if
// needed. Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialize access instead of failing with
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return newSQLStore(ctx, db, sq.Question, sqliteSchema)
}

// NewPostgresStore connects to the PostgreSQL database at databaseURL and
// creates the tables if needed.
func NewPostgresStore(ctx context.Context, databaseURL string) (*SQLStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	return newSQLStore(ctx, db, sq.Dollar, postgresSchema)
}

func newSQLStore(ctx context.Context, db *sql.DB, ph sq.PlaceholderFormat, schema string) (*SQLStore, error) {
	for stmt := range strings.SplitSeq(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &SQLStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(ph),
		now: time.Now,
	}, nil
}

func (s *SQLStore) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Exists reports whether an item with the fingerprint was delivered.
func (s *SQLStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	query, args, err := s.sb.Select("1").From(sentTable).
		Where(sq.Eq{"fingerprint": fingerprint}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Record marks an item as delivered.
func (s *SQLStore) Record(ctx context.Context, d Delivery) error {
	return s.exec(ctx, s.sb.Insert(sentTable).
		Columns("fingerprint", "title", "link", "sent_at").
		Values(d.Fingerprint, d.Title, d.Link, d.SentAt.Unix()).
		Suffix("ON CONFLICT (fingerprint) DO NOTHING"))
}

// Archive saves a delivered item to the archive.
func (s *SQLStore) Archive(ctx context.Context, r Record) error {
	return s.exec(ctx, s.sb.Insert(archiveTable).
		Columns(slices.Concat(archiveColumns, []string{"search_title", "search_summary"})...).
		Values(
			r.Fingerprint, r.Source, r.Category, r.Title, r.Summary, r.Link,
			r.PublishedAt.Unix(), r.Analysis, r.CreatedAt.Unix(),
			strings.ToLower(r.Title), strings.ToLower(r.Summary),
		).
		Suffix("ON CONFLICT (fingerprint) DO NOTHING"))
}

// Latest returns up to n most recently archived items.
func (s *SQLStore) Latest(ctx context.Context, n int) ([]Record, error) {
	return s.queryRecords(ctx, s.selectRecords(n))
}

// Search returns archived items whose title or summary contains query.
func (s *SQLStore) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryRecords(ctx, s.selectRecords(limit).Where(sq.Or{
		sq.Expr(`search_title LIKE ? ESCAPE '\'`, pattern),
		sq.Expr(`search_summary LIKE ? ESCAPE '\'`, pattern),
	}))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *SQLStore) selectRecords(limit int) sq.SelectBuilder {
	return s.sb.Select(archiveColumns...).From(archiveTable).
		OrderBy("id DESC").
		Limit(uint64(max(limit, 0)))
}

func (s *SQLStore) queryRecords(ctx context.Context, b sq.SelectBuilder) ([]Record, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                      Record
			publishedAt, createdAt int64
		)
		if err := rows.Scan(
			&r.Fingerprint, &r.Source, &r.Category, &r.Title, &r.Summary, &r.Link,
			&publishedAt, &r.Analysis, &createdAt,
		); err != nil {
			return nil, err
		}
		r.PublishedAt = time.Unix(publishedAt, 0).UTC()
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Language returns the language of a user, storing fallback on first contact.
func (s *SQLStore) Language(ctx context.Context, userID int64, fallback string) (string, error) {
	if err := s.exec(ctx, s.sb.Insert(prefsTable).
		Columns("user_id", "language", "updated_at").
		Values(userID, fallback, s.now().Unix()).
		Suffix("ON CONFLICT (user_id) DO NOTHING")); err != nil {
		return "", err
	}

	query, args, err := s.sb.Select("language").From(prefsTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return "", err
	}
	var lang string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&lang); err != nil {
		return "", err
	}
	return lang, nil
}

// SetLanguage changes the language of a user.
func (s *SQLStore) SetLanguage(ctx context.Context, userID int64, lang string) error {
	return s.exec(ctx, s.sb.Insert(prefsTable).
		Columns("user_id", "language", "updated_at").
		Values(userID, lang, s.now().Unix()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET language = excluded.language, updated_at = excluded.updated_at"))
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database connection.
func (s *SQLStore) Close() error { return s.db.Close() }

var _ Store = (*SQLStore)(nil)
