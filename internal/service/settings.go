package service

import (
	"context"
	"strings"

	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

// SettingsService stores application-wide key/value settings.
type SettingsService struct {
	base
}

func scanSetting(r rowScanner) (*models.Setting, error) {
	var st models.Setting
	if err := r.Scan(&st.ID, &st.Key, &st.Value, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// Get returns the setting for key, nil when unset.
func (s *SettingsService) Get(ctx context.Context, key string) (*models.Setting, error) {
	st, err := queryOne(s.db.QueryRow(ctx,
		`SELECT id, key, value, updated_at FROM settings WHERE key = ?`, key), scanSetting)
	if err != nil {
		return nil, s.fail("get setting", err, "key", key)
	}
	return st, nil
}

// Set creates or replaces the value for key.
func (s *SettingsService) Set(ctx context.Context, key, value string) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperrors.Invalid("key", "must not be empty")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO settings (id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, newID(), key, value, s.now())
	if err != nil {
		return nil, s.fail("set setting", err, "key", key)
	}
	return s.Get(ctx, key)
}

// All returns every setting ordered by key.
func (s *SettingsService) All(ctx context.Context) ([]models.Setting, error) {
	rows, err := s.db.Query(ctx, `SELECT id, key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, s.fail("list settings", err)
	}
	out, err := scanAll(rows, scanSetting)
	if err != nil {
		return nil, s.fail("list settings", err)
	}
	return out, nil
}

func (s *SettingsService) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.db.Exec(ctx, `DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return false, s.fail("delete setting", err, "key", key)
	}
	return n > 0, nil
}
