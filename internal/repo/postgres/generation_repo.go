package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrGenerationNotFound = errors.New("generation not found")

type GenerationRepo struct {
	pool *pgxpool.Pool
}

type GenerationRecord struct {
	ID        string
	UserID    string
	Prompt    string
	ImageKey  string
	Status    string
	CreatedAt time.Time
}

type CreateGenerationInput struct {
	ID       string
	UserID   string
	Prompt   string
	ImageKey string
	Status   string
}

func NewGenerationRepo(pool *pgxpool.Pool) *GenerationRepo {
	return &GenerationRepo{pool: pool}
}

func (r *GenerationRepo) Create(ctx context.Context, in CreateGenerationInput) (GenerationRecord, error) {
	if r.pool == nil {
		return GenerationRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.UserID) == "" {
		return GenerationRecord{}, fmt.Errorf("invalid generation create payload")
	}

	var record GenerationRecord
	err := r.pool.QueryRow(ctx, `
INSERT INTO generations (
	id,
	user_id,
	prompt,
	image_key,
	status,
	created_at
) VALUES ($1, $2, $3, $4, $5, NOW())
RETURNING id, user_id, prompt, image_key, status, created_at
`, in.ID, in.UserID, in.Prompt, in.ImageKey, in.Status).Scan(
		&record.ID,
		&record.UserID,
		&record.Prompt,
		&record.ImageKey,
		&record.Status,
		&record.CreatedAt,
	)
	if err != nil {
		return GenerationRecord{}, fmt.Errorf("create generation: %w", err)
	}

	return record, nil
}

func (r *GenerationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]GenerationRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("invalid user id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, prompt, image_key, status, created_at
FROM generations
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var records []GenerationRecord
	for rows.Next() {
		var record GenerationRecord
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Prompt,
			&record.ImageKey,
			&record.Status,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation rows: %w", err)
	}

	return records, nil
}
