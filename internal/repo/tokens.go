package repo

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"botfleet/internal/domain"
)

// TokenPrefix makes issued credentials self-identifying in logs without
// revealing which bot they belong to.
const TokenPrefix = "fbt_"

// NewTokenValue generates an unguessable bearer secret.
func NewTokenValue() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return TokenPrefix + hex.EncodeToString(buf)
}

const tokenColumns = `id,bot_id,name,token,is_active,last_used_at,created_at`

func scanToken(scan func(dest ...any) error) (domain.APIToken, error) {
	var t domain.APIToken
	var lastUsed sql.NullString
	err := scan(&t.ID, &t.BotID, &t.Name, &t.Token, &t.IsActive, &lastUsed, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.String
	}
	return t, nil
}

// IssueToken persists a freshly generated active token for a bot.
func (r Repo) IssueToken(ctx context.Context, botID int64, name string) (domain.APIToken, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	value := NewTokenValue()
	res, err := r.DB.ExecContext(ctx, `INSERT INTO api_tokens(bot_id,name,token,is_active,created_at) VALUES (?,?,?,1,?)`,
		botID, name, value, now)
	if err != nil {
		return domain.APIToken{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.APIToken{}, err
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE id=?`, id)
	return scanToken(row.Scan)
}

// ResolveToken maps a presented secret to its bot. An inactive token is
// indistinguishable from a missing one. Successful resolutions stamp
// last_used_at before returning.
func (r Repo) ResolveToken(ctx context.Context, token string) (domain.TokenRef, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,bot_id FROM api_tokens WHERE token=? AND is_active=1 LIMIT 1`, token)
	var ref domain.TokenRef
	err := row.Scan(&ref.TokenID, &ref.BotID)
	if err == sql.ErrNoRows {
		return domain.TokenRef{}, ErrNotFound
	}
	if err != nil {
		return domain.TokenRef{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.DB.ExecContext(ctx, `UPDATE api_tokens SET last_used_at=? WHERE id=?`, now, ref.TokenID); err != nil {
		return domain.TokenRef{}, err
	}
	return ref, nil
}

// RevokeToken deactivates a token. Revoking an already-revoked or unknown
// token is a no-op success.
func (r Repo) RevokeToken(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE api_tokens SET is_active=0 WHERE id=?`, id)
	return err
}

// ListTokensByBot returns all tokens for a bot, active and revoked.
func (r Repo) ListTokensByBot(ctx context.Context, botID int64) ([]domain.APIToken, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE bot_id=? ORDER BY created_at DESC`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []domain.APIToken
	for rows.Next() {
		t, err := scanToken(rows.Scan)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
