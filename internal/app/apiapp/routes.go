package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dmarques/pixgen/backend/internal/config"
	authsvc "github.com/dmarques/pixgen/backend/internal/services/auth"
	checkoutsvc "github.com/dmarques/pixgen/backend/internal/services/checkout"
	gensvc "github.com/dmarques/pixgen/backend/internal/services/generation"
	paymentsvc "github.com/dmarques/pixgen/backend/internal/services/payments"
	profilesvc "github.com/dmarques/pixgen/backend/internal/services/profiles"
	ratesvc "github.com/dmarques/pixgen/backend/internal/services/rate"
	"github.com/dmarques/pixgen/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService       *authsvc.Service
	PaymentService    *paymentsvc.Service
	CheckoutService   *checkoutsvc.Service
	GenerationService *gensvc.Service
	ProfileService    *profilesvc.Service
	ConfirmLimiter    *ratesvc.Limiter
	Logger            *zap.Logger
	Config            config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	webhookHandler := handlers.NewWebhookHandler(deps.PaymentService, deps.Config.AbacatePay.WebhookSecret, deps.Logger)
	billingHandler := handlers.NewBillingHandler(deps.PaymentService, deps.CheckoutService, deps.ConfirmLimiter, deps.Logger)
	generationHandler := handlers.NewGenerationHandler(deps.GenerationService, deps.Logger)
	meHandler := handlers.NewMeHandler(deps.ProfileService)
	productsHandler := handlers.NewProductsHandler(deps.CheckoutService)
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/billing", func(r chi.Router) {
		r.Use(PublicCORS)
		r.Post("/webhook", webhookHandler.Handle)
		r.With(authMW).Post("/checkout", billingHandler.Checkout)
		r.With(authMW).Get("/confirm", billingHandler.Confirm)
		r.With(authMW).Post("/confirm", billingHandler.Confirm)
	})

	r.Get("/products", productsHandler.List)
	r.With(authMW).Get("/me", meHandler.Handle)
	r.With(authMW).Post("/generate", generationHandler.Generate)
	r.With(authMW).Get("/generations", generationHandler.List)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/billing", func(r chi.Router) {
			r.Use(PublicCORS)
			r.Post("/webhook", webhookHandler.Handle)
			r.With(authMW).Post("/checkout", billingHandler.Checkout)
			r.With(authMW).Get("/confirm", billingHandler.Confirm)
			r.With(authMW).Post("/confirm", billingHandler.Confirm)
		})
		r.Get("/products", productsHandler.List)
		r.With(authMW).Get("/me", meHandler.Handle)
		r.With(authMW).Post("/generate", generationHandler.Generate)
		r.With(authMW).Get("/generations", generationHandler.List)
	})
}
