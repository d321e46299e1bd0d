// Package search answers full-text queries over tasks and documents.
//
// The SQLite FTS5 index is the source of truth and is kept in sync by
// triggers. An optional Meilisearch mirror is written after commit and
// consulted first while healthy.
package search

import "context"

// Kind identifies the searchable entity.
type Kind string

const (
	KindTask     Kind = "task"
	KindDocument Kind = "document"
)

// Query describes a search request.
type Query struct {
	Kind  Kind
	Text  string
	Limit int
}

const defaultLimit = 50

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

// Record is the text indexed for one entity.
type Record struct {
	Kind  Kind   `json:"-"`
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Searcher returns matching ids, best match first.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]string, error)
	Healthy() bool
}

// Indexer can push records into a search index.
type Indexer interface {
	Index(ctx context.Context, recs ...Record) error
	Delete(ctx context.Context, kind Kind, id string) error
}

// Mirror is an external index that is both searched and written.
type Mirror interface {
	Searcher
	Indexer
}
