package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPurchaseNotFound  = errors.New("purchase not found")
	ErrBillingIDConflict = errors.New("billing id already attached to another purchase")
)

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

type PurchaseRecord struct {
	ID             string
	UserID         string
	ProductID      string
	BillingID      *string
	AmountCents    int
	CreditsGranted int
	Status         string
	QRCodeURL      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CreatePurchaseInput struct {
	ID             string
	UserID         string
	ProductID      string
	BillingID      string
	AmountCents    int
	CreditsGranted int
	QRCodeURL      string
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

func (r *PurchaseRepo) CreatePending(ctx context.Context, in CreatePurchaseInput) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase create payload")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
INSERT INTO purchases (
	id,
	user_id,
	product_id,
	billing_id,
	amount_cents,
	credits_granted,
	status,
	qr_code_url,
	created_at,
	updated_at
) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, 'pending', NULLIF($7, ''), NOW(), NOW())
RETURNING id, user_id, product_id, billing_id, amount_cents, credits_granted, status, qr_code_url, created_at, updated_at
`, in.ID, in.UserID, in.ProductID, strings.TrimSpace(in.BillingID), in.AmountCents, in.CreditsGranted, strings.TrimSpace(in.QRCodeURL)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PurchaseRecord{}, ErrBillingIDConflict
		}
		return PurchaseRecord{}, fmt.Errorf("create pending purchase: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) FindByID(ctx context.Context, purchaseID string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT id, user_id, product_id, billing_id, amount_cents, credits_granted, status, qr_code_url, created_at, updated_at
FROM purchases
WHERE id = $1
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by id: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) FindByBillingID(ctx context.Context, billingID string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(billingID) == "" {
		return PurchaseRecord{}, fmt.Errorf("invalid billing id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT id, user_id, product_id, billing_id, amount_cents, credits_granted, status, qr_code_url, created_at, updated_at
FROM purchases
WHERE billing_id = $1
LIMIT 1
`, strings.TrimSpace(billingID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by billing id: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) FindForUserByBillingID(ctx context.Context, userID, billingID string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(billingID) == "" {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase lookup payload")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT id, user_id, product_id, billing_id, amount_cents, credits_granted, status, qr_code_url, created_at, updated_at
FROM purchases
WHERE user_id = $1
  AND billing_id = $2
LIMIT 1
`, userID, strings.TrimSpace(billingID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase for user by billing id: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) LatestPendingForUser(ctx context.Context, userID string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return PurchaseRecord{}, fmt.Errorf("invalid user id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT id, user_id, product_id, billing_id, amount_cents, credits_granted, status, qr_code_url, created_at, updated_at
FROM purchases
WHERE user_id = $1
  AND status = 'pending'
ORDER BY created_at DESC
LIMIT 1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find latest pending purchase: %w", err)
	}

	return record, nil
}

// Complete flips the purchase to completed and credits the owner's balance in
// a single statement, so a crash can never leave the status flipped without
// the balance applied. The status = 'pending' guard makes concurrent callers
// race safely: exactly one observes changed=true, the rest get the already
// completed row back. The flip also requires the owning profile row to exist;
// without it the credit UPDATE would silently touch zero rows, so the
// purchase stays pending and the delivery can be retried.
func (r *PurchaseRepo) Complete(ctx context.Context, purchaseID string) (PurchaseRecord, bool, error) {
	if r.pool == nil {
		return PurchaseRecord{}, false, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return PurchaseRecord{}, false, fmt.Errorf("invalid purchase id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
WITH flipped AS (
	UPDATE purchases
	SET status = 'completed',
		updated_at = NOW()
	WHERE id = $1
	  AND status = 'pending'
	  AND EXISTS (SELECT 1 FROM profiles WHERE profiles.id = purchases.user_id)
	RETURNING id, user_id, product_id, billing_id, amount_cents, credits_granted, status, qr_code_url, created_at, updated_at
), credited AS (
	UPDATE profiles p
	SET credit_balance = p.credit_balance + f.credits_granted,
		updated_at = NOW()
	FROM flipped f
	WHERE p.id = f.user_id
)
SELECT id, user_id, product_id, billing_id, amount_cents, credits_granted, status, qr_code_url, created_at, updated_at
FROM flipped
`, purchaseID))
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, false, fmt.Errorf("complete purchase: %w", err)
	}

	existing, err := r.FindByID(ctx, purchaseID)
	if err != nil {
		return PurchaseRecord{}, false, err
	}
	return existing, false, nil
}

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var record PurchaseRecord
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.ProductID,
		&record.BillingID,
		&record.AmountCents,
		&record.CreditsGranted,
		&record.Status,
		&record.QRCodeURL,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return PurchaseRecord{}, err
	}
	return record, nil
}
