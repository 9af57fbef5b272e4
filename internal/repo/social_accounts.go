package repo

import (
	"context"
	"database/sql"

	"botfleet/internal/domain"
)

const socialAccountColumns = `id,platform,username,COALESCE(email,''),COALESCE(password_enc,''),COALESCE(phone,''),COALESCE(proxy_used,''),status,followers_count,posts_count,last_post_at,created_at,updated_at`

func scanSocialAccount(scan func(dest ...any) error) (domain.SocialAccount, error) {
	var a domain.SocialAccount
	var lastPost sql.NullString
	err := scan(&a.ID, &a.Platform, &a.Username, &a.Email, &a.PasswordEnc, &a.Phone, &a.ProxyUsed,
		&a.Status, &a.FollowersCount, &a.PostsCount, &lastPost, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if lastPost.Valid {
		a.LastPostAt = &lastPost.String
	}
	return a, nil
}

// InsertSocialAccount inserts unconditionally; there is no de-duplication
// on username.
func (r Repo) InsertSocialAccount(ctx context.Context, a domain.SocialAccount) (domain.SocialAccount, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO social_accounts(platform,username,email,password_enc,phone,proxy_used,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		a.Platform, a.Username, nullable(a.Email), nullable(a.PasswordEnc), nullable(a.Phone), nullable(a.ProxyUsed),
		a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return domain.SocialAccount{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.SocialAccount{}, err
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+socialAccountColumns+` FROM social_accounts WHERE id=?`, id)
	return scanSocialAccount(row.Scan)
}

// ListSocialAccounts returns accounts, optionally filtered by status.
func (r Repo) ListSocialAccounts(ctx context.Context, status string, limit int) ([]domain.SocialAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []domain.SocialAccount
	for rows.Next() {
		a, err := scanSocialAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r Repo) UpdateSocialAccountStatus(ctx context.Context, id int64, status, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE social_accounts SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
