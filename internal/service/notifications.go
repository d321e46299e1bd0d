package service

import (
	"context"
	"strings"

	apperrors "github.com/tgienger/devdesk/internal/errors"
	"github.com/tgienger/devdesk/internal/models"
)

type NotificationService struct {
	base
}

const notificationColumns = `id, recipient_id, type, title, body, data, read, created_at`

func scanNotification(r rowScanner) (*models.Notification, error) {
	var n models.Notification
	if err := r.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Body, &n.Data, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListForRecipient returns a user's notifications, newest first.
func (s *NotificationService) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.Query(ctx, query, recipientID)
	if err != nil {
		return nil, s.fail("list notifications", err, "recipient", recipientID)
	}
	out, err := scanAll(rows, scanNotification)
	if err != nil {
		return nil, s.fail("list notifications", err, "recipient", recipientID)
	}
	return out, nil
}

func (s *NotificationService) Create(ctx context.Context, in models.NewNotification) (*models.Notification, error) {
	switch {
	case in.RecipientID == "":
		return nil, apperrors.Invalid("recipient_id", "must not be empty")
	case strings.TrimSpace(in.Type) == "":
		return nil, apperrors.Invalid("type", "must not be empty")
	case strings.TrimSpace(in.Title) == "":
		return nil, apperrors.Invalid("title", "must not be empty")
	}
	n := &models.Notification{
		ID:          newID(),
		RecipientID: in.RecipientID,
		Type:        in.Type,
		Title:       in.Title,
		Body:        in.Body,
		Data:        in.Data,
		CreatedAt:   s.now(),
	}
	ok, err := exists(ctx, s.db, "users", in.RecipientID)
	if err != nil {
		return nil, s.fail("create notification", err)
	}
	if !ok {
		return nil, apperrors.Invalid("recipient_id", "user does not exist")
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, body, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, n.ID, n.RecipientID, n.Type, n.Title, n.Body, n.Data, n.CreatedAt)
	if err != nil {
		return nil, s.fail("create notification", apperrors.FromConstraint(err), "recipient", in.RecipientID)
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) (bool, error) {
	n, err := s.db.Exec(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, s.fail("mark notification read", err, "id", id)
	}
	return n > 0, nil
}

// MarkAllRead returns how many notifications changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.db.Exec(ctx, `UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0`, recipientID)
	if err != nil {
		return 0, s.fail("mark all notifications read", err, "recipient", recipientID)
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return false, s.fail("delete notification", err, "id", id)
	}
	return n > 0, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	n, err := count(ctx, s.db, `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0`, recipientID)
	if err != nil {
		return 0, s.fail("count unread notifications", err, "recipient", recipientID)
	}
	return n, nil
}
