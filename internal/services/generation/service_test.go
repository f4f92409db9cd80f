package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	pgrepo "github.com/dmarques/pixgen/backend/internal/repo/postgres"
)

type stubStore struct {
	created []pgrepo.CreateGenerationInput
	err     error
}

func (s *stubStore) Create(_ context.Context, in pgrepo.CreateGenerationInput) (pgrepo.GenerationRecord, error) {
	if s.err != nil {
		return pgrepo.GenerationRecord{}, s.err
	}
	s.created = append(s.created, in)
	return pgrepo.GenerationRecord{
		ID:        in.ID,
		UserID:    in.UserID,
		Prompt:    in.Prompt,
		ImageKey:  in.ImageKey,
		Status:    in.Status,
		CreatedAt: time.Now(),
	}, nil
}

func (s *stubStore) ListForUser(_ context.Context, userID string, _ int) ([]pgrepo.GenerationRecord, error) {
	var records []pgrepo.GenerationRecord
	for _, in := range s.created {
		if in.UserID == userID {
			records = append(records, pgrepo.GenerationRecord{ID: in.ID, UserID: in.UserID, Prompt: in.Prompt, ImageKey: in.ImageKey})
		}
	}
	return records, nil
}

type stubProfiles struct {
	profile  pgrepo.ProfileRecord
	debits   int
	refunds  int
	debitErr error
}

func (s *stubProfiles) Get(_ context.Context, _ string) (pgrepo.ProfileRecord, error) {
	return s.profile, nil
}

func (s *stubProfiles) DebitCredits(_ context.Context, _ string, amount int) (int, error) {
	if s.debitErr != nil {
		return 0, s.debitErr
	}
	s.debits += amount
	s.profile.CreditBalance -= amount
	return s.profile.CreditBalance, nil
}

func (s *stubProfiles) RefundCredits(_ context.Context, _ string, amount int) error {
	s.refunds += amount
	s.profile.CreditBalance += amount
	return nil
}

type stubGenerator struct {
	image []byte
	err   error
	calls int
}

func (s *stubGenerator) GenerateImage(_ context.Context, _ string, _, _ int) ([]byte, string, error) {
	s.calls++
	if s.err != nil {
		return nil, "", s.err
	}
	return s.image, "image/png", nil
}

type stubStorage struct {
	objects map[string][]byte
	deleted []string
}

func (s *stubStorage) EnsureBucket(_ context.Context) error { return nil }

func (s *stubStorage) PutImage(_ context.Context, key string, image []byte, _ string) error {
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = image
	return nil
}

func (s *stubStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.example/" + key, nil
}

func (s *stubStorage) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func newTestService(profiles *stubProfiles, generator *stubGenerator) (*Service, *stubStore, *stubStorage) {
	store := &stubStore{}
	storage := &stubStorage{}
	svc := NewService(Dependencies{
		Store:     store,
		Profiles:  profiles,
		Generator: generator,
		Storage:   storage,
	})
	return svc, store, storage
}

func TestGenerateDebitsAndStoresImage(t *testing.T) {
	profiles := &stubProfiles{profile: pgrepo.ProfileRecord{ID: "user-1", CreditBalance: 5}}
	generator := &stubGenerator{image: []byte("png-bytes")}
	svc, store, storage := newTestService(profiles, generator)

	image, err := svc.Generate(context.Background(), "user-1", "a red fox in the snow")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if profiles.debits != 1 {
		t.Fatalf("debited %d credits, want 1", profiles.debits)
	}
	if image.CreditsLeft != 4 {
		t.Fatalf("credits left = %d, want 4", image.CreditsLeft)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one generation row, got %d", len(store.created))
	}
	if _, ok := storage.objects[store.created[0].ImageKey]; !ok {
		t.Fatalf("image not stored under %s", store.created[0].ImageKey)
	}
	if image.URL == "" {
		t.Fatal("expected a presigned url")
	}
}

func TestGenerateUsesPublicURLWhenConfigured(t *testing.T) {
	profiles := &stubProfiles{profile: pgrepo.ProfileRecord{ID: "user-1", CreditBalance: 5}}
	store := &stubStore{}
	svc := NewService(Dependencies{
		Store:     store,
		Profiles:  profiles,
		Generator: &stubGenerator{image: []byte("png")},
		Storage:   &stubStorage{},
		PublicURL: "https://cdn.example/pixgen-images/",
	})

	image, err := svc.Generate(context.Background(), "user-1", "prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := "https://cdn.example/pixgen-images/" + store.created[0].ImageKey
	if image.URL != want {
		t.Fatalf("url = %q, want %q", image.URL, want)
	}
}

func TestGenerateSkipsDebitForActivePlan(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour)
	profiles := &stubProfiles{profile: pgrepo.ProfileRecord{
		ID:            "user-1",
		CreditBalance: 0,
		PlanActive:    true,
		PlanExpiresAt: &expires,
	}}
	svc, _, _ := newTestService(profiles, &stubGenerator{image: []byte("png")})

	if _, err := svc.Generate(context.Background(), "user-1", "prompt"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if profiles.debits != 0 {
		t.Fatalf("debited %d credits with an active plan", profiles.debits)
	}
}

func TestGenerateChargesWhenPlanExpired(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	profiles := &stubProfiles{profile: pgrepo.ProfileRecord{
		ID:            "user-1",
		CreditBalance: 3,
		PlanActive:    true,
		PlanExpiresAt: &expired,
	}}
	svc, _, _ := newTestService(profiles, &stubGenerator{image: []byte("png")})

	if _, err := svc.Generate(context.Background(), "user-1", "prompt"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if profiles.debits != 1 {
		t.Fatalf("debited %d credits, want 1", profiles.debits)
	}
}

func TestGenerateRefundsWhenGeneratorFails(t *testing.T) {
	profiles := &stubProfiles{profile: pgrepo.ProfileRecord{ID: "user-1", CreditBalance: 5}}
	generator := &stubGenerator{err: errors.New("model unavailable")}
	svc, _, _ := newTestService(profiles, generator)

	if _, err := svc.Generate(context.Background(), "user-1", "prompt"); err == nil {
		t.Fatal("expected generator error")
	}
	if profiles.refunds != 1 {
		t.Fatalf("refunded %d credits, want 1", profiles.refunds)
	}
	if profiles.profile.CreditBalance != 5 {
		t.Fatalf("balance = %d, want 5", profiles.profile.CreditBalance)
	}
}

func TestGenerateInsufficientCredits(t *testing.T) {
	profiles := &stubProfiles{
		profile:  pgrepo.ProfileRecord{ID: "user-1"},
		debitErr: pgrepo.ErrInsufficientCredits,
	}
	generator := &stubGenerator{image: []byte("png")}
	svc, _, _ := newTestService(profiles, generator)

	if _, err := svc.Generate(context.Background(), "user-1", "prompt"); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if generator.calls != 0 {
		t.Fatal("generator called despite failed debit")
	}
}

func TestGenerateDeletesObjectWhenRecordFails(t *testing.T) {
	profiles := &stubProfiles{profile: pgrepo.ProfileRecord{ID: "user-1", CreditBalance: 5}}
	store := &stubStore{err: errors.New("insert failed")}
	storage := &stubStorage{}
	svc := NewService(Dependencies{
		Store:     store,
		Profiles:  profiles,
		Generator: &stubGenerator{image: []byte("png")},
		Storage:   storage,
	})

	if _, err := svc.Generate(context.Background(), "user-1", "prompt"); err == nil {
		t.Fatal("expected record error")
	}
	if len(storage.deleted) != 1 {
		t.Fatalf("expected orphan object cleanup, deleted=%v", storage.deleted)
	}
	if profiles.refunds != 1 {
		t.Fatalf("refunded %d credits, want 1", profiles.refunds)
	}
}

func TestGenerateValidation(t *testing.T) {
	svc, _, _ := newTestService(&stubProfiles{}, &stubGenerator{image: []byte("png")})

	if _, err := svc.Generate(context.Background(), "", "prompt"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without user, got %v", err)
	}
	if _, err := svc.Generate(context.Background(), "user-1", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without prompt, got %v", err)
	}
}
