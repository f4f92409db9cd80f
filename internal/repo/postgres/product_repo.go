package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrProductNotFound = errors.New("product not found")

type ProductRepo struct {
	pool *pgxpool.Pool
}

type ProductRecord struct {
	ID             string
	Name           string
	CreditsGranted int
	PriceCents     int
	Unlimited      bool
	Active         bool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) FindByID(ctx context.Context, productID string) (ProductRecord, error) {
	if r.pool == nil {
		return ProductRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(productID) == "" {
		return ProductRecord{}, fmt.Errorf("invalid product id")
	}

	var record ProductRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, name, credits_granted, price_cents, unlimited, active
FROM products
WHERE id = $1
LIMIT 1
`, strings.TrimSpace(productID)).Scan(
		&record.ID,
		&record.Name,
		&record.CreditsGranted,
		&record.PriceCents,
		&record.Unlimited,
		&record.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductRecord{}, ErrProductNotFound
		}
		return ProductRecord{}, fmt.Errorf("find product by id: %w", err)
	}

	return record, nil
}

func (r *ProductRepo) ListActive(ctx context.Context) ([]ProductRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, name, credits_granted, price_cents, unlimited, active
FROM products
WHERE active = TRUE
ORDER BY price_cents ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	defer rows.Close()

	var records []ProductRecord
	for rows.Next() {
		var record ProductRecord
		if err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.CreditsGranted,
			&record.PriceCents,
			&record.Unlimited,
			&record.Active,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return records, nil
}
