package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgrepo "github.com/dmarques/pixgen/backend/internal/repo/postgres"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrProfileNotFound = errors.New("profile not found")
)

type Store interface {
	Get(ctx context.Context, userID string) (pgrepo.ProfileRecord, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

type Snapshot struct {
	UserID        string
	Email         string
	CreditBalance int
	Plan          string
	PlanActive    bool
	PlanExpiresAt *time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Me reports the profile as the client should see it: an expired plan shows
// up as inactive even before anything cleans the row.
func (s *Service) Me(ctx context.Context, userID string) (Snapshot, error) {
	if s.store == nil {
		return Snapshot{}, fmt.Errorf("profile store is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return Snapshot{}, ErrValidation
	}

	record, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrProfileNotFound) {
			return Snapshot{}, ErrProfileNotFound
		}
		return Snapshot{}, err
	}

	planActive := record.PlanActive
	if planActive && record.PlanExpiresAt != nil && !record.PlanExpiresAt.After(s.now()) {
		planActive = false
	}

	return Snapshot{
		UserID:        record.ID,
		Email:         record.Email,
		CreditBalance: record.CreditBalance,
		Plan:          record.Plan,
		PlanActive:    planActive,
		PlanExpiresAt: record.PlanExpiresAt,
	}, nil
}
