package repo

import (
	"context"

	"botfleet/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(type,title,message,metadata,is_read,created_at) VALUES (?,?,?,?,0,?)`,
		n.Type, n.Title, n.Message, nullable(n.Metadata), n.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,type,title,message,COALESCE(metadata,''),is_read,created_at
FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Metadata, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r Repo) CountUnreadNotifications(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE is_read=0`).Scan(&n)
	return n, err
}

// MarkNotificationRead is idempotent; marking a read row again succeeds.
func (r Repo) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Distinguish missing rows from already-read ones.
		var exists int
		if err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE id=?`, id).Scan(&exists); err != nil {
			return ErrNotFound
		}
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE is_read=0`)
	return err
}
