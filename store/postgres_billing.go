package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/jackc/pgx/v5"
)

// billingRepo implements types.BillingRepository on top of either the pool or
// an open transaction. Every entitlement mutation is a single
// INSERT ... ON CONFLICT DO UPDATE statement, so concurrent grants for one
// user serialize on the row lock instead of racing a read-modify-write.
type billingRepo struct {
	q   querier
	now func() time.Time
}

const entitlementColumns = `user_id, available_packs, unlimited_until, updated_at`

func scanEntitlement(row pgx.Row) (*types.Entitlement, error) {
	var e types.Entitlement
	if err := row.Scan(&e.UserID, &e.AvailablePacks, &e.UnlimitedUntil, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r billingRepo) HasPayment(ctx context.Context, chargeID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE charge_id = $1)`, strings.TrimSpace(chargeID)).Scan(&ok)
	return ok, err
}

func (r billingRepo) RecordPayment(ctx context.Context, p types.Payment) (*types.Payment, error) {
	p.ChargeID = strings.TrimSpace(p.ChargeID)
	if p.Status == "" {
		p.Status = types.PaymentStatusSuccess
	}
	err := r.q.QueryRow(ctx, `
INSERT INTO payments (charge_id, user_id, product, currency, amount, status, is_test)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (charge_id) DO NOTHING
RETURNING id, created_at
`, p.ChargeID, p.UserID, string(p.Product), strings.TrimSpace(p.Currency), p.Amount, string(p.Status), p.IsTest).Scan(&p.ID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &types.DuplicateChargeError{ChargeID: p.ChargeID}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r billingRepo) RecentPayments(ctx context.Context, userID int64, limit int) ([]types.Payment, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := r.q.Query(ctx, `
SELECT id, charge_id, user_id, product, currency, amount, status, is_test, created_at
FROM payments
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Payment, 0, limit)
	for rows.Next() {
		var (
			p       types.Payment
			product string
			status  string
		)
		if err := rows.Scan(&p.ID, &p.ChargeID, &p.UserID, &product, &p.Currency, &p.Amount, &status, &p.IsTest, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Product = types.Product(product)
		p.Status = types.PaymentStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r billingRepo) GetEntitlement(ctx context.Context, userID int64) (*types.Entitlement, error) {
	if _, err := r.q.Exec(ctx, `
INSERT INTO entitlements (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING
`, userID); err != nil {
		return nil, err
	}
	return scanEntitlement(r.q.QueryRow(ctx, `SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`, userID))
}

func (r billingRepo) AddPack(ctx context.Context, userID int64, count int) (*types.Entitlement, error) {
	return scanEntitlement(r.q.QueryRow(ctx, `
INSERT INTO entitlements (user_id, available_packs)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET
  available_packs = entitlements.available_packs + EXCLUDED.available_packs,
  updated_at = NOW()
RETURNING `+entitlementColumns, userID, count))
}

func (r billingRepo) ExtendUnlimited(ctx context.Context, userID int64, duration time.Duration) (*types.Entitlement, error) {
	now := r.now().UTC()
	return scanEntitlement(r.q.QueryRow(ctx, `
INSERT INTO entitlements (user_id, unlimited_until)
VALUES ($1, $2::timestamptz + make_interval(secs => $3))
ON CONFLICT (user_id) DO UPDATE SET
  unlimited_until = GREATEST(COALESCE(entitlements.unlimited_until, $2::timestamptz), $2::timestamptz) + make_interval(secs => $3),
  updated_at = NOW()
RETURNING `+entitlementColumns, userID, now, duration.Seconds()))
}

func (r billingRepo) RevokeUnlimited(ctx context.Context, userID int64) error {
	_, err := r.q.Exec(ctx, `
UPDATE entitlements
SET unlimited_until = NULL, updated_at = NOW()
WHERE user_id = $1
`, userID)
	return err
}

func (s *PostgresStore) InBillingTx(ctx context.Context, fn func(repo types.BillingRepository) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return fn(billingRepo{q: tx, now: s.now})
	})
}

// SetClock replaces the time source used for unlimited extensions.
func (s *PostgresStore) SetClock(now func() time.Time) {
	s.billingRepo.now = now
}
