package service

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// ScreenshotService manages references to image files on disk. The files
// themselves are never copied or deleted.
type ScreenshotService struct {
	base
}

const screenshotColumns = `id, title, COALESCE(description, ''), file_path, COALESCE(thumbnail_path, ''),
	width, height, created_at, task_id, metadata`

func scanScreenshot(r rowScanner) (*models.Screenshot, error) {
	var (
		sc   models.Screenshot
		task sql.NullString
	)
	if err := r.Scan(&sc.ID, &sc.Title, &sc.Description, &sc.FilePath, &sc.ThumbnailPath,
		&sc.Width, &sc.Height, &sc.CreatedAt, &task, &sc.Metadata); err != nil {
		return nil, err
	}
	sc.TaskID = fromNull(task)
	return &sc, nil
}

func getScreenshot(ctx context.Context, q db.Querier, id string) (*models.Screenshot, error) {
	return queryOne(q.QueryRow(ctx, `SELECT `+screenshotColumns+` FROM screenshots WHERE id = ?`, id), scanScreenshot)
}

// imageSize reads the dimensions from an image header.
func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

func (s *ScreenshotService) List(ctx context.Context, taskID string) ([]models.Screenshot, error) {
	query := `SELECT ` + screenshotColumns + ` FROM screenshots`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	rows, err := s.db.Query(ctx, query+` ORDER BY created_at DESC, rowid DESC`, args...)
	if err != nil {
		return nil, s.fail("list screenshots", err)
	}
	out, err := scanAll(rows, scanScreenshot)
	if err != nil {
		return nil, s.fail("list screenshots", err)
	}
	return out, nil
}

func (s *ScreenshotService) Get(ctx context.Context, id string) (*models.Screenshot, error) {
	sc, err := getScreenshot(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get screenshot", err, "id", id)
	}
	return sc, nil
}

// Create registers a screenshot. When width or height is zero both are
// read from the file, which must then be a gif, jpeg or png.
func (s *ScreenshotService) Create(ctx context.Context, in models.NewScreenshot) (*models.Screenshot, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperrors.Invalid("title", "must not be empty")
	}
	if in.FilePath == "" {
		return nil, apperrors.Invalid("file_path", "must not be empty")
	}
	if in.Width <= 0 || in.Height <= 0 {
		w, h, err := imageSize(in.FilePath)
		if err != nil {
			return nil, apperrors.Invalid("file_path", err.Error())
		}
		in.Width, in.Height = w, h
	}
	sc := &models.Screenshot{
		ID:            newID(),
		Title:         in.Title,
		Description:   in.Description,
		FilePath:      in.FilePath,
		ThumbnailPath: in.ThumbnailPath,
		Width:         in.Width,
		Height:        in.Height,
		CreatedAt:     s.now(),
		TaskID:        cleared(in.TaskID),
		Metadata:      in.Metadata,
	}
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, q, "tasks", "task_id", sc.TaskID); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO screenshots (id, title, description, file_path, thumbnail_path, width, height, created_at, task_id, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sc.ID, sc.Title, sc.Description, sc.FilePath, nullable(&sc.ThumbnailPath), sc.Width, sc.Height,
			sc.CreatedAt, nullable(sc.TaskID), sc.Metadata)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return nil, s.fail("create screenshot", err, "path", in.FilePath)
	}
	return sc, nil
}

func (s *ScreenshotService) Update(ctx context.Context, id string, patch models.ScreenshotPatch) (bool, error) {
	found := false
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		sc, err := getScreenshot(ctx, q, id)
		if err != nil || sc == nil {
			return err
		}
		found = true
		if patch.Title != nil {
			if strings.TrimSpace(*patch.Title) == "" {
				return apperrors.Invalid("title", "must not be empty")
			}
			sc.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			sc.Description = *patch.Description
		}
		if patch.ThumbnailPath != nil {
			sc.ThumbnailPath = *patch.ThumbnailPath
		}
		if patch.TaskID != nil {
			if err := requireRef(ctx, q, "tasks", "task_id", patch.TaskID); err != nil {
				return err
			}
			sc.TaskID = cleared(patch.TaskID)
		}
		if patch.Metadata != nil {
			sc.Metadata = *patch.Metadata
		}
		_, err = q.Exec(ctx, `
			UPDATE screenshots SET title = ?, description = ?, thumbnail_path = ?, task_id = ?, metadata = ?
			WHERE id = ?
		`, sc.Title, sc.Description, nullable(&sc.ThumbnailPath), nullable(sc.TaskID), sc.Metadata, id)
		return apperrors.FromConstraint(err)
	})
	if err != nil {
		return false, s.fail("update screenshot", err, "id", id)
	}
	return found, nil
}

func (s *ScreenshotService) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.db.Exec(ctx, `DELETE FROM screenshots WHERE id = ?`, id)
	if err != nil {
		return false, s.fail("delete screenshot", err, "id", id)
	}
	return n > 0, nil
}
