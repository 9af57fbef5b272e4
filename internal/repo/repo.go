package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"botfleet/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const botColumns = `id,name,type,status,COALESCE(description,''),COALESCE(config,''),last_heartbeat,COALESCE(last_activity,''),error_count,total_operations,hosting,created_at,updated_at`

func scanBot(scan func(dest ...any) error) (domain.Bot, error) {
	var b domain.Bot
	var hb sql.NullString
	err := scan(&b.ID, &b.Name, &b.Type, &b.Status, &b.Description, &b.Config,
		&hb, &b.LastActivity, &b.ErrorCount, &b.TotalOperations, &b.Hosting, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if hb.Valid {
		b.LastHeartbeat = &hb.String
	}
	return b, nil
}

func (r Repo) InsertBot(ctx context.Context, b domain.Bot) (domain.Bot, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO bots(name,type,status,description,config,hosting,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		b.Name, b.Type, b.Status, nullable(b.Description), nullable(b.Config), b.Hosting, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return domain.Bot{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Bot{}, err
	}
	return r.GetBot(ctx, id)
}

func (r Repo) GetBot(ctx context.Context, id int64) (domain.Bot, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE id=?`, id)
	return scanBot(row.Scan)
}

func (r Repo) ListBots(ctx context.Context) ([]domain.Bot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+botColumns+` FROM bots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bots []domain.Bot
	for rows.Next() {
		b, err := scanBot(rows.Scan)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// RecordHeartbeat applies a liveness signal in one statement: the bot goes
// online, the heartbeat timestamp is stamped and the operation counter is
// incremented server-side so concurrent heartbeats never lose updates.
// A non-empty activity is recorded as the current work description.
func (r Repo) RecordHeartbeat(ctx context.Context, id int64, activity, now string) error {
	fields := []string{"status='online'", "last_heartbeat=?", "total_operations=total_operations+1", "updated_at=?"}
	args := []any{now, now}
	if activity != "" {
		fields = append(fields, "last_activity=?")
		args = append(args, activity)
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE bots SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBotStatus writes the caller-supplied status verbatim. Going online
// also stamps the heartbeat; going into error bumps the error counter.
func (r Repo) UpdateBotStatus(ctx context.Context, id int64, status, activity, now string) error {
	fields := []string{"status=?", "updated_at=?"}
	args := []any{status, now}
	if status == domain.BotOnline {
		fields = append(fields, "last_heartbeat=?")
		args = append(args, now)
	}
	if status == domain.BotError {
		fields = append(fields, "error_count=error_count+1")
	}
	if activity != "" {
		fields = append(fields, "last_activity=?")
		args = append(args, activity)
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE bots SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertBotLog(ctx context.Context, l domain.BotLog) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO bot_logs(bot_id,level,message,metadata,created_at) VALUES (?,?,?,?,?)`,
		l.BotID, l.Level, l.Message, nullable(l.Metadata), l.CreatedAt)
	return err
}

func (r Repo) ListBotLogs(ctx context.Context, botID int64, limit int) ([]domain.BotLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,bot_id,level,message,COALESCE(metadata,''),created_at FROM bot_logs`
	var args []any
	if botID != 0 {
		query += ` WHERE bot_id=?`
		args = append(args, botID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []domain.BotLog
	for rows.Next() {
		var l domain.BotLog
		if err := rows.Scan(&l.ID, &l.BotID, &l.Level, &l.Message, &l.Metadata, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
