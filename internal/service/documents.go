package service

import (
	"context"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
	"github.com/tgienger/devdesk/internal/search"
)

// DocumentService manages versioned documents. Every content or title
// change appends an immutable version row.
type DocumentService struct {
	base
}

const documentColumns = `id, title, content, author_id, version, created_at, updated_at, metadata`

func scanDocument(r rowScanner) (*models.Document, error) {
	var d models.Document
	if err := r.Scan(&d.ID, &d.Title, &d.Content, &d.AuthorID, &d.Version, &d.CreatedAt, &d.UpdatedAt, &d.Metadata); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanVersion(r rowScanner) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	if err := r.Scan(&v.DocumentID, &v.Version, &v.Content, &v.EditorID, &v.Changes, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func getDocument(ctx context.Context, q db.Querier, id string) (*models.Document, error) {
	return queryOne(q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id), scanDocument)
}

func documentRecord(d *models.Document) search.Record {
	return search.Record{Kind: search.KindDocument, ID: d.ID, Title: d.Title, Body: d.Content}
}

// List returns documents, most recently updated first.
func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return nil, s.fail("list documents", err)
	}
	docs, err := scanAll(rows, scanDocument)
	if err != nil {
		return nil, s.fail("list documents", err)
	}
	return docs, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	d, err := getDocument(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get document", err, "id", id)
	}
	return d, nil
}

func insertVersion(ctx context.Context, q db.Querier, v models.DocumentVersion) error {
	_, err := q.Exec(ctx, `
		INSERT INTO document_versions (document_id, version, content, editor_id, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.DocumentID, v.Version, v.Content, v.EditorID, v.Changes, v.CreatedAt)
	return apperrors.FromConstraint(err)
}

// Create stores a document at version 1 together with its first version row.
func (s *DocumentService) Create(ctx context.Context, in models.NewDocument) (*models.Document, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperrors.Invalid("title", "must not be empty")
	}
	now := s.now()
	d := &models.Document{
		ID:        newID(),
		Title:     in.Title,
		Content:   in.Content,
		AuthorID:  in.AuthorID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  in.Metadata,
	}
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, q, "users", "author_id", &in.AuthorID); err != nil {
			return err
		}
		if in.AuthorID == "" {
			return apperrors.Invalid("author_id", "must not be empty")
		}
		_, err := q.Exec(ctx, `
			INSERT INTO documents (id, title, content, author_id, version, created_at, updated_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.Title, d.Content, d.AuthorID, d.Version, d.CreatedAt, d.UpdatedAt, d.Metadata)
		if err != nil {
			return apperrors.FromConstraint(err)
		}
		return insertVersion(ctx, q, models.DocumentVersion{
			DocumentID: d.ID,
			Version:    1,
			Content:    d.Content,
			EditorID:   d.AuthorID,
			Changes:    "Initial version",
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, s.fail("create document", err, "title", in.Title)
	}
	s.search.Index(documentRecord(d))
	return d, nil
}

// Update applies patch. A title or content change bumps the version and
// appends a version row attributed to patch.EditorID, which defaults to
// the author. It reports false when the document does not exist.
func (s *DocumentService) Update(ctx context.Context, id string, patch models.DocumentPatch) (bool, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return false, apperrors.Invalid("title", "must not be empty")
	}
	var updated *models.Document
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		d, err := getDocument(ctx, q, id)
		if err != nil || d == nil {
			return err
		}
		changed := false
		if patch.Title != nil && strings.TrimSpace(*patch.Title) != d.Title {
			d.Title = strings.TrimSpace(*patch.Title)
			changed = true
		}
		if patch.Content != nil && *patch.Content != d.Content {
			d.Content = *patch.Content
			changed = true
		}
		if patch.Metadata != nil {
			d.Metadata = *patch.Metadata
		}
		d.UpdatedAt = s.now()

		if changed {
			editor := patch.EditorID
			if editor == "" {
				editor = d.AuthorID
			}
			if err := requireRef(ctx, q, "users", "editor_id", &editor); err != nil {
				return err
			}
			d.Version++
			if err := insertVersion(ctx, q, models.DocumentVersion{
				DocumentID: id,
				Version:    d.Version,
				Content:    d.Content,
				EditorID:   editor,
				Changes:    patch.Changes,
				CreatedAt:  d.UpdatedAt,
			}); err != nil {
				return err
			}
		}
		_, err = q.Exec(ctx, `
			UPDATE documents SET title = ?, content = ?, version = ?, metadata = ?, updated_at = ? WHERE id = ?
		`, d.Title, d.Content, d.Version, d.Metadata, d.UpdatedAt, id)
		if err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return false, s.fail("update document", err, "id", id)
	}
	if updated == nil {
		return false, nil
	}
	s.search.Index(documentRecord(updated))
	return true, nil
}

// Versions lists every version of a document, newest first.
func (s *DocumentService) Versions(ctx context.Context, id string) ([]models.DocumentVersion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT document_id, version, content, editor_id, changes, created_at
		FROM document_versions WHERE document_id = ? ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, s.fail("list document versions", err, "id", id)
	}
	out, err := scanAll(rows, scanVersion)
	if err != nil {
		return nil, s.fail("list document versions", err, "id", id)
	}
	return out, nil
}

// Version returns one version of a document, nil when absent.
func (s *DocumentService) Version(ctx context.Context, id string, version int) (*models.DocumentVersion, error) {
	v, err := queryOne(s.db.QueryRow(ctx, `
		SELECT document_id, version, content, editor_id, changes, created_at
		FROM document_versions WHERE document_id = ? AND version = ?
	`, id, version), scanVersion)
	if err != nil {
		return nil, s.fail("get document version", err, "id", id, "version", version)
	}
	return v, nil
}

// Delete removes a document after its versions.
func (s *DocumentService) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM document_versions WHERE document_id = ?`, id); err != nil {
			return err
		}
		n, err := q.Exec(ctx, `DELETE FROM documents WHERE id = ?`, id)
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, s.fail("delete document", err, "id", id)
	}
	if deleted {
		s.search.Remove(search.KindDocument, id)
	}
	return deleted, nil
}

// Search runs a prefix full-text search over titles and content.
func (s *DocumentService) Search(ctx context.Context, text string, limit int) ([]models.Document, error) {
	ids, err := s.search.Search(ctx, search.Query{Kind: search.KindDocument, Text: text, Limit: limit})
	if err != nil {
		return nil, s.fail("search documents", err, "query", text)
	}
	docs := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		d, err := getDocument(ctx, s.db, id)
		if err != nil {
			return nil, s.fail("search documents", err, "query", text)
		}
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs, nil
}
