package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
)

// FTS implements Searcher over the SQLite FTS5 tables.
type FTS struct {
	q db.Querier
}

// NewFTS creates an FTS searcher.
func NewFTS(q db.Querier) *FTS {
	return &FTS{q: q}
}

// Healthy always returns true; the index lives in the same file as the data.
func (f *FTS) Healthy() bool {
	return true
}

type ftsTable struct {
	fts   string
	base  string
	title string
	body  string
}

var ftsTables = map[Kind]ftsTable{
	KindTask:     {fts: "tasks_fts", base: "tasks", title: "title", body: "description"},
	KindDocument: {fts: "documents_fts", base: "documents", title: "title", body: "content"},
}

func tableFor(kind Kind) (ftsTable, error) {
	t, ok := ftsTables[kind]
	if !ok {
		return ftsTable{}, fmt.Errorf("search: unknown kind %q", kind)
	}
	return t, nil
}

// BuildMatch turns free text into an FTS5 prefix query: every term is
// quoted so operators are matched literally, and must prefix-match.
// Blank input yields "".
func BuildMatch(text string) string {
	terms := strings.Fields(text)
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		parts = append(parts, `"`+strings.ReplaceAll(term, `"`, `""`)+`"*`)
	}
	return strings.Join(parts, " ")
}

// Search runs a ranked prefix search and returns ids ordered by bm25.
func (f *FTS) Search(ctx context.Context, q Query) ([]string, error) {
	t, err := tableFor(q.Kind)
	if err != nil {
		return nil, err
	}
	match := BuildMatch(q.Text)
	if match == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT b.id FROM %[1]s
		JOIN %[2]s b ON b.rowid = %[1]s.rowid
		WHERE %[1]s MATCH ?
		ORDER BY bm25(%[1]s)
		LIMIT ?`, t.fts, t.base)
	rows, err := f.q.Query(ctx, query, match, q.limit())
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", t.fts, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s hit: %w", t.fts, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s hits: %w", t.fts, err)
	}
	return ids, nil
}

// Records loads every indexable record of kind, for reindexing a mirror.
func (f *FTS) Records(ctx context.Context, kind Kind) ([]Record, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, %s, COALESCE(%s, '') FROM %s ORDER BY rowid`, t.title, t.body, t.base)
	rows, err := f.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", t.base, err)
	}
	defer func() { _ = rows.Close() }()

	var recs []Record
	for rows.Next() {
		r := Record{Kind: kind}
		if err := rows.Scan(&r.ID, &r.Title, &r.Body); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", t.base, err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", t.base, err)
	}
	return recs, nil
}
