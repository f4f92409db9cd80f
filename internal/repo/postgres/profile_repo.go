package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

type ProfileRecord struct {
	ID            string
	Email         string
	CreditBalance int
	Plan          string
	PlanActive    bool
	PlanExpiresAt *time.Time
	UpdatedAt     time.Time
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (ProfileRecord, error) {
	if r.pool == nil {
		return ProfileRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return ProfileRecord{}, fmt.Errorf("invalid user id")
	}

	var record ProfileRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, email, credit_balance, plan, plan_active, plan_expires_at, updated_at
FROM profiles
WHERE id = $1
LIMIT 1
`, userID).Scan(
		&record.ID,
		&record.Email,
		&record.CreditBalance,
		&record.Plan,
		&record.PlanActive,
		&record.PlanExpiresAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProfileRecord{}, ErrProfileNotFound
		}
		return ProfileRecord{}, fmt.Errorf("get profile: %w", err)
	}

	return record, nil
}

// DebitCredits is the generation-time debit: a conditional decrement that
// cannot take the balance below zero. Zero rows affected means the balance
// was short.
func (r *ProfileRepo) DebitCredits(ctx context.Context, userID string, amount int) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" || amount <= 0 {
		return 0, fmt.Errorf("invalid debit payload")
	}

	var balance int
	err := r.pool.QueryRow(ctx, `
UPDATE profiles
SET credit_balance = credit_balance - $2,
	updated_at = NOW()
WHERE id = $1
  AND credit_balance >= $2
RETURNING credit_balance
`, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.Get(ctx, userID); getErr != nil {
				return 0, getErr
			}
			return 0, ErrInsufficientCredits
		}
		return 0, fmt.Errorf("debit credits: %w", err)
	}

	return balance, nil
}

func (r *ProfileRepo) RefundCredits(ctx context.Context, userID string, amount int) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" || amount <= 0 {
		return fmt.Errorf("invalid refund payload")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE profiles
SET credit_balance = credit_balance + $2,
	updated_at = NOW()
WHERE id = $1
`, userID, amount); err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}

	return nil
}

// ActivatePlan is safe to re-apply: setting the same plan and a fresh expiry
// twice has the same observable effect as once.
func (r *ProfileRepo) ActivatePlan(ctx context.Context, userID, plan string, expiresAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(plan) == "" {
		return fmt.Errorf("invalid plan activation payload")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE profiles
SET plan = $2,
	plan_active = TRUE,
	plan_expires_at = $3::timestamptz,
	updated_at = NOW()
WHERE id = $1
`, userID, strings.TrimSpace(plan), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("activate plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}

	return nil
}
