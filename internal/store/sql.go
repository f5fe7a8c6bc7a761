package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/websearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pages (
		id            INTEGER PRIMARY KEY,
		url           TEXT NOT NULL UNIQUE,
		title         TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL DEFAULT '',
		last_modified BIGINT,
		size          INTEGER NOT NULL DEFAULT 0,
		fetched_at    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		parent_url TEXT NOT NULL,
		child_url  TEXT NOT NULL,
		PRIMARY KEY (parent_url, child_url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_child ON relationships (child_url)`,
}

// pageRow mirrors the pages table; last_modified is unix seconds.
type pageRow struct {
	ID           int           `db:"id"`
	URL          string        `db:"url"`
	Title        string        `db:"title"`
	Content      string        `db:"content"`
	LastModified sql.NullInt64 `db:"last_modified"`
	Size         int           `db:"size"`
}

func (r pageRow) page() Page {
	p := Page{ID: r.ID, URL: r.URL, Title: r.Title, Content: r.Content, Size: r.Size}
	if r.LastModified.Valid {
		t := time.Unix(r.LastModified.Int64, 0).UTC()
		p.LastModified = &t
	}
	return p
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// SQLStore implements Store on any database the database package opens.
type SQLStore struct {
	db     *database.Client
	logger *slog.Logger
}

func NewSQLStore(db *database.Client) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger.WithComponent("page-store"),
	}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Insert(ctx context.Context, p Page) error {
	_, err := s.db.DB.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO pages (id, url, title, content, last_modified, size, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.URL, p.Title, p.Content, nullableTime(p.LastModified), p.Size, time.Now().Unix())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Newf(apperrors.ErrConflict, 409, "page %s already stored", p.URL)
		}
		return fmt.Errorf("inserting page %s: %w", p.URL, err)
	}
	return nil
}

func (s *SQLStore) UpdateByID(ctx context.Context, p Page) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx, s.db.Rebind(
		`UPDATE pages SET url = ?, title = ?, content = ?, last_modified = ?, size = ?, fetched_at = ?
		WHERE id = ?`),
		p.URL, p.Title, p.Content, nullableTime(p.LastModified), p.Size, time.Now().Unix(), p.ID)
	if err != nil {
		return 0, fmt.Errorf("updating page %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for page %d: %w", p.ID, err)
	}
	return n, nil
}

func (s *SQLStore) InsertRelationship(ctx context.Context, parentURL, childURL string) error {
	_, err := s.db.DB.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO relationships (parent_url, child_url) VALUES (?, ?)
		ON CONFLICT (parent_url, child_url) DO NOTHING`),
		parentURL, childURL)
	if err != nil {
		return fmt.Errorf("inserting relationship %s -> %s: %w", parentURL, childURL, err)
	}
	return nil
}

const pageColumns = `id, url, title, content, last_modified, size`

func (s *SQLStore) GetAllPages(ctx context.Context) ([]Page, error) {
	var rows []pageRow
	if err := s.db.DB.SelectContext(ctx, &rows, `SELECT `+pageColumns+` FROM pages ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	return toPages(rows), nil
}

func (s *SQLStore) ListPages(ctx context.Context, limit, offset int) ([]Page, error) {
	var rows []pageRow
	err := s.db.DB.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT `+pageColumns+` FROM pages ORDER BY id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	return toPages(rows), nil
}

func toPages(rows []pageRow) []Page {
	pages := make([]Page, len(rows))
	for i, r := range rows {
		pages[i] = r.page()
	}
	return pages
}

func (s *SQLStore) GetAllRelationships(ctx context.Context) ([]Relationship, error) {
	var rels []struct {
		ParentURL string `db:"parent_url"`
		ChildURL  string `db:"child_url"`
		ParentID  int    `db:"parent_id"`
		ChildID   int    `db:"child_id"`
	}
	err := s.db.DB.SelectContext(ctx, &rels,
		`SELECT r.parent_url, r.child_url,
			COALESCE(p.id, -1) AS parent_id,
			COALESCE(c.id, -1) AS child_id
		FROM relationships r
		LEFT JOIN pages p ON p.url = r.parent_url
		LEFT JOIN pages c ON c.url = r.child_url
		ORDER BY r.parent_url, r.child_url`)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}
	out := make([]Relationship, len(rels))
	for i, r := range rels {
		out[i] = Relationship{ParentURL: r.ParentURL, ChildURL: r.ChildURL, ParentID: r.ParentID, ChildID: r.ChildID}
	}
	return out, nil
}

func (s *SQLStore) GetPageID(ctx context.Context, url string) (int, error) {
	var id int
	err := s.db.DB.GetContext(ctx, &id, s.db.Rebind(`SELECT id FROM pages WHERE url = ?`), url)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("looking up page id for %s: %w", url, err)
	}
	return id, nil
}

func (s *SQLStore) GetPage(ctx context.Context, id int) (*Page, error) {
	var row pageRow
	err := s.db.DB.GetContext(ctx, &row, s.db.Rebind(`SELECT `+pageColumns+` FROM pages WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "document %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting page %d: %w", id, err)
	}
	p := row.page()
	return &p, nil
}

func (s *SQLStore) ParentURLs(ctx context.Context, id int) ([]string, error) {
	urls := []string{}
	err := s.db.DB.SelectContext(ctx, &urls, s.db.Rebind(
		`SELECT r.parent_url FROM relationships r
		JOIN pages c ON c.url = r.child_url
		WHERE c.id = ? ORDER BY r.parent_url`), id)
	if err != nil {
		return nil, fmt.Errorf("parents of page %d: %w", id, err)
	}
	return urls, nil
}

func (s *SQLStore) ChildURLs(ctx context.Context, id int) ([]string, error) {
	urls := []string{}
	err := s.db.DB.SelectContext(ctx, &urls, s.db.Rebind(
		`SELECT r.child_url FROM relationships r
		JOIN pages p ON p.url = r.parent_url
		WHERE p.id = ? ORDER BY r.child_url`), id)
	if err != nil {
		return nil, fmt.Errorf("children of page %d: %w", id, err)
	}
	return urls, nil
}

func (s *SQLStore) CountPages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM pages`); err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}

func (s *SQLStore) MaxPageID(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.GetContext(ctx, &n, `SELECT COALESCE(MAX(id), 0) FROM pages`); err != nil {
		return 0, fmt.Errorf("max page id: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
