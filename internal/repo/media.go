package repo

import (
	"context"
	"database/sql"

	"botfleet/internal/domain"
)

const mediaColumns = `id,source_url,COALESCE(thumbnail_url,''),media_type,COALESCE(category,''),source,source_bot_id,status,COALESCE(target_channel,''),posted_at,retry_count,created_at`

func scanMedia(scan func(dest ...any) error) (domain.MediaItem, error) {
	var m domain.MediaItem
	var botID sql.NullInt64
	var postedAt sql.NullString
	err := scan(&m.ID, &m.SourceURL, &m.ThumbnailURL, &m.MediaType, &m.Category, &m.Source,
		&botID, &m.Status, &m.TargetChannel, &postedAt, &m.RetryCount, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if botID.Valid {
		m.SourceBotID = &botID.Int64
	}
	if postedAt.Valid {
		m.PostedAt = &postedAt.String
	}
	return m, nil
}

func (r Repo) InsertMedia(ctx context.Context, m domain.MediaItem) (domain.MediaItem, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO media_queue(source_url,thumbnail_url,media_type,category,source,source_bot_id,status,target_channel,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		m.SourceURL, nullable(m.ThumbnailURL), m.MediaType, nullable(m.Category), m.Source,
		nullableInt(m.SourceBotID), m.Status, nullable(m.TargetChannel), m.CreatedAt)
	if err != nil {
		return domain.MediaItem{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.MediaItem{}, err
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_queue WHERE id=?`, id)
	return scanMedia(row.Scan)
}

// ListMedia returns queue entries, optionally filtered by status, newest
// first for operator views and oldest first for the pending feed.
func (r Repo) ListMedia(ctx context.Context, status string, limit int) ([]domain.MediaItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + mediaColumns + ` FROM media_queue`
	var args []any
	order := ` ORDER BY created_at DESC, id DESC`
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
		if status == "pending" {
			order = ` ORDER BY created_at ASC, id ASC`
		}
	}
	query += order + ` LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.MediaItem
	for rows.Next() {
		m, err := scanMedia(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// UpdateMediaStatus patches a queue entry; posting stamps posted_at.
func (r Repo) UpdateMediaStatus(ctx context.Context, id int64, status, now string) error {
	query := `UPDATE media_queue SET status=? WHERE id=?`
	args := []any{status, id}
	if status == "posted" {
		query = `UPDATE media_queue SET status=?, posted_at=? WHERE id=?`
		args = []any{status, now, id}
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
