package repo

import (
	"context"
	"database/sql"

	"botfleet/internal/domain"
)

const subscriberColumns = `id,telegram_id,COALESCE(telegram_username,''),COALESCE(name,''),plan,status,expires_at,created_at,updated_at`

func scanSubscriber(scan func(dest ...any) error) (domain.Subscriber, error) {
	var s domain.Subscriber
	var expires sql.NullString
	err := scan(&s.ID, &s.TelegramID, &s.TelegramUsername, &s.Name, &s.Plan, &s.Status, &expires, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if expires.Valid {
		s.ExpiresAt = &expires.String
	}
	return s, nil
}

// UpsertSubscriber inserts or updates the row keyed on telegram_id.
// Plan and status are always written (last write wins); optional text
// fields only overwrite when the caller supplied them.
func (r Repo) UpsertSubscriber(ctx context.Context, s domain.Subscriber) (domain.Subscriber, error) {
	var expires any
	if s.ExpiresAt != nil {
		expires = *s.ExpiresAt
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO subscribers(telegram_id,telegram_username,name,plan,status,expires_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(telegram_id) DO UPDATE SET
  telegram_username=COALESCE(excluded.telegram_username, subscribers.telegram_username),
  name=COALESCE(excluded.name, subscribers.name),
  plan=excluded.plan,
  status=excluded.status,
  expires_at=COALESCE(excluded.expires_at, subscribers.expires_at),
  updated_at=excluded.updated_at`,
		s.TelegramID, nullable(s.TelegramUsername), nullable(s.Name), s.Plan, s.Status, expires, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return domain.Subscriber{}, err
	}
	return r.GetSubscriberByTelegramID(ctx, s.TelegramID)
}

func (r Repo) GetSubscriberByTelegramID(ctx context.Context, telegramID string) (domain.Subscriber, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE telegram_id=?`, telegramID)
	return scanSubscriber(row.Scan)
}

func (r Repo) ListSubscribers(ctx context.Context, limit int) ([]domain.Subscriber, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows.Scan)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r Repo) CountSubscribers(ctx context.Context, status string) (int64, error) {
	query := `SELECT COUNT(*) FROM subscribers`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	var n int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
