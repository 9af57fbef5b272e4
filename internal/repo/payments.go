package repo

import (
	"context"
	"database/sql"

	"botfleet/internal/domain"
)

const paymentColumns = `id,subscriber_id,COALESCE(telegram_id,''),amount,currency,status,gateway,COALESCE(tx_id,''),plan,expires_at,paid_at,created_at`

func scanPayment(scan func(dest ...any) error) (domain.Payment, error) {
	var p domain.Payment
	var subID sql.NullInt64
	var expires, paid sql.NullString
	err := scan(&p.ID, &subID, &p.TelegramID, &p.Amount, &p.Currency, &p.Status, &p.Gateway,
		&p.TxID, &p.Plan, &expires, &paid, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if subID.Valid {
		p.SubscriberID = &subID.Int64
	}
	if expires.Valid {
		p.ExpiresAt = &expires.String
	}
	if paid.Valid {
		p.PaidAt = &paid.String
	}
	return p, nil
}

func (r Repo) InsertPayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	var expires any
	if p.ExpiresAt != nil {
		expires = *p.ExpiresAt
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO payments(subscriber_id,telegram_id,amount,currency,status,gateway,tx_id,plan,expires_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		nullableInt(p.SubscriberID), nullable(p.TelegramID), p.Amount, p.Currency, p.Status, p.Gateway,
		nullable(p.TxID), p.Plan, expires, p.CreatedAt)
	if err != nil {
		return domain.Payment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Payment{}, err
	}
	return r.GetPayment(ctx, id)
}

func (r Repo) GetPayment(ctx context.Context, id int64) (domain.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id)
	return scanPayment(row.Scan)
}

func (r Repo) ListPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// UpdatePaymentStatus patches a payment; confirmation stamps paid_at.
func (r Repo) UpdatePaymentStatus(ctx context.Context, id int64, status, now string) error {
	query := `UPDATE payments SET status=? WHERE id=?`
	args := []any{status, id}
	if status == "paid" {
		query = `UPDATE payments SET status=?, paid_at=? WHERE id=?`
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
