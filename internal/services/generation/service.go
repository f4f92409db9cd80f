package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pgrepo "github.com/dmarques/pixgen/backend/internal/repo/postgres"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrGenerator           = errors.New("image generator error")
)

const (
	generationCost = 1
	signedURLTTL   = 15 * time.Minute
	maxPromptLen   = 1000
)

type Store interface {
	Create(ctx context.Context, in pgrepo.CreateGenerationInput) (pgrepo.GenerationRecord, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]pgrepo.GenerationRecord, error)
}

type ProfileStore interface {
	Get(ctx context.Context, userID string) (pgrepo.ProfileRecord, error)
	DebitCredits(ctx context.Context, userID string, amount int) (int, error)
	RefundCredits(ctx context.Context, userID string, amount int) error
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, width, height int) ([]byte, string, error)
}

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	PutImage(ctx context.Context, key string, image []byte, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	store     Store
	profiles  ProfileStore
	generator ImageGenerator
	storage   ObjectStorage
	log       *zap.Logger
	publicURL string
	width     int
	height    int
	now       func() time.Time
	newID     func() string
}

type Dependencies struct {
	Store     Store
	Profiles  ProfileStore
	Generator ImageGenerator
	Storage   ObjectStorage
	Logger    *zap.Logger
	PublicURL string
	Width     int
	Height    int
}

type Image struct {
	ID          string
	Prompt      string
	URL         string
	CreditsLeft int
	CreatedAt   time.Time
}

func NewService(deps Dependencies) *Service {
	width := deps.Width
	if width <= 0 {
		width = 1024
	}
	height := deps.Height
	if height <= 0 {
		height = 1024
	}

	return &Service{
		store:     deps.Store,
		profiles:  deps.Profiles,
		generator: deps.Generator,
		storage:   deps.Storage,
		log:       deps.Logger,
		publicURL: strings.TrimRight(strings.TrimSpace(deps.PublicURL), "/"),
		width:     width,
		height:    height,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Generate debits one credit, renders the prompt and stores the result. An
// active unlimited plan skips the debit. Any failure after a debit refunds
// it, so a provider outage never eats paid credits.
func (s *Service) Generate(ctx context.Context, userID, prompt string) (Image, error) {
	if s.store == nil || s.profiles == nil || s.generator == nil || s.storage == nil {
		return Image{}, fmt.Errorf("generation dependencies are not configured")
	}

	userID = strings.TrimSpace(userID)
	prompt = strings.TrimSpace(prompt)
	if userID == "" || prompt == "" || len(prompt) > maxPromptLen {
		return Image{}, ErrValidation
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return Image{}, err
	}

	debited := 0
	if !s.unlimitedActive(profile) {
		balance, err := s.profiles.DebitCredits(ctx, userID, generationCost)
		if err != nil {
			if errors.Is(err, pgrepo.ErrInsufficientCredits) {
				return Image{}, ErrInsufficientCredits
			}
			return Image{}, err
		}
		debited = generationCost
		profile.CreditBalance = balance
	}

	image, err := s.render(ctx, userID, prompt)
	if err != nil {
		s.refund(ctx, userID, debited)
		return Image{}, err
	}

	image.CreditsLeft = profile.CreditBalance
	return image, nil
}

func (s *Service) render(ctx context.Context, userID, prompt string) (Image, error) {
	raw, contentType, err := s.generator.GenerateImage(ctx, prompt, s.width, s.height)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrGenerator, err)
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return Image{}, fmt.Errorf("ensure bucket: %w", err)
	}

	id := s.newID()
	key := fmt.Sprintf("generations/%s/%s.png", userID, id)
	if err := s.storage.PutImage(ctx, key, raw, contentType); err != nil {
		return Image{}, fmt.Errorf("put image: %w", err)
	}

	record, err := s.store.Create(ctx, pgrepo.CreateGenerationInput{
		ID:       id,
		UserID:   userID,
		Prompt:   prompt,
		ImageKey: key,
		Status:   "completed",
	})
	if err != nil {
		_ = s.storage.Delete(ctx, key)
		return Image{}, fmt.Errorf("create generation record: %w", err)
	}

	url, err := s.imageURL(ctx, record.ImageKey)
	if err != nil {
		return Image{}, err
	}

	return Image{
		ID:        record.ID,
		Prompt:    record.Prompt,
		URL:       url,
		CreatedAt: record.CreatedAt,
	}, nil
}

// imageURL prefers the bucket's public base url when one is configured and
// falls back to presigned links for private buckets.
func (s *Service) imageURL(ctx context.Context, key string) (string, error) {
	if s.publicURL != "" {
		return s.publicURL + "/" + key, nil
	}

	url, err := s.storage.PresignGet(ctx, key, signedURLTTL)
	if err != nil {
		return "", fmt.Errorf("presign image url: %w", err)
	}
	return url, nil
}

func (s *Service) refund(ctx context.Context, userID string, amount int) {
	if amount <= 0 {
		return
	}
	if err := s.profiles.RefundCredits(ctx, userID, amount); err != nil && s.log != nil {
		s.log.Error("refund after failed generation",
			zap.String("user_id", userID),
			zap.Int("amount", amount),
			zap.Error(err),
		)
	}
}

func (s *Service) unlimitedActive(profile pgrepo.ProfileRecord) bool {
	if !profile.PlanActive {
		return false
	}
	if profile.PlanExpiresAt == nil {
		return true
	}
	return profile.PlanExpiresAt.After(s.now())
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]Image, error) {
	if s.store == nil || s.storage == nil {
		return nil, fmt.Errorf("generation dependencies are not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrValidation
	}

	records, err := s.store.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(records))
	for _, rec := range records {
		url, err := s.imageURL(ctx, rec.ImageKey)
		if err != nil {
			return nil, err
		}
		images = append(images, Image{
			ID:        rec.ID,
			Prompt:    rec.Prompt,
			URL:       url,
			CreatedAt: rec.CreatedAt,
		})
	}

	return images, nil
}
