// Package store persists crawled pages and the parent→child links between
// them. The crawler is the only writer; the indexer and searcher read.
package store

import (
	"context"
	"time"
)

// Page is a fetched document. ID is 1-based and stable once assigned.
type Page struct {
	ID           int        `json:"id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	Size         int        `json:"size"`
}

// Relationship is a directed link recorded by URL. IDs are resolved when the
// relationship is read and are -1 while the endpoint has no page row.
type Relationship struct {
	ParentURL string `json:"parentUrl"`
	ChildURL  string `json:"childUrl"`
	ParentID  int    `json:"parentId"`
	ChildID   int    `json:"childId"`
}

// Store is the page/relationship persistence contract.
type Store interface {
	// Insert adds a new page. A duplicate URL yields an error matching
	// errors.ErrConflict; callers fall back to UpdateByID.
	Insert(ctx context.Context, p Page) error
	UpdateByID(ctx context.Context, p Page) (int64, error)
	// InsertRelationship records parent→child; repeats are collapsed.
	InsertRelationship(ctx context.Context, parentURL, childURL string) error
	GetAllPages(ctx context.Context) ([]Page, error)
	GetAllRelationships(ctx context.Context) ([]Relationship, error)
	// GetPageID returns -1 when url has no page.
	GetPageID(ctx context.Context, url string) (int, error)
	GetPage(ctx context.Context, id int) (*Page, error)
	ListPages(ctx context.Context, limit, offset int) ([]Page, error)
	ParentURLs(ctx context.Context, id int) ([]string, error)
	ChildURLs(ctx context.Context, id int) ([]string, error)
	CountPages(ctx context.Context) (int, error)
	MaxPageID(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
