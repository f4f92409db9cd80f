package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dmarques/pixgen/backend/internal/config"
	"github.com/dmarques/pixgen/backend/internal/infra/abacatepay"
	"github.com/dmarques/pixgen/backend/internal/infra/httpclient"
	s3infra "github.com/dmarques/pixgen/backend/internal/infra/s3"
	pgrepo "github.com/dmarques/pixgen/backend/internal/repo/postgres"
	redrepo "github.com/dmarques/pixgen/backend/internal/repo/redis"
	authsvc "github.com/dmarques/pixgen/backend/internal/services/auth"
	checkoutsvc "github.com/dmarques/pixgen/backend/internal/services/checkout"
	gensvc "github.com/dmarques/pixgen/backend/internal/services/generation"
	paymentsvc "github.com/dmarques/pixgen/backend/internal/services/payments"
	profilesvc "github.com/dmarques/pixgen/backend/internal/services/profiles"
	ratesvc "github.com/dmarques/pixgen/backend/internal/services/rate"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)

	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	profileRepo := pgrepo.NewProfileRepo(pool)
	productRepo := pgrepo.NewProductRepo(pool)
	generationRepo := pgrepo.NewGenerationRepo(pool)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	var billingClient *abacatepay.Client
	if c, err := abacatepay.NewClient(abacatepay.Config{
		BaseURL: cfg.AbacatePay.BaseURL,
		APIKey:  cfg.AbacatePay.APIKey,
		Timeout: cfg.AbacatePay.Timeout,
	}, log); err != nil {
		log.Warn("billing provider init failed, continuing in degraded mode", zap.Error(err))
	} else {
		billingClient = c
	}

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret)
	authService := authsvc.NewService(jwtManager)
	profileService := profilesvc.NewService(profileRepo)
	paymentService := paymentsvc.NewService(paymentsvc.Dependencies{
		Purchases: purchaseRepo,
		Profiles:  profileRepo,
		Products:  productRepo,
		Resolver:  billingClient,
	})
	checkoutService := checkoutsvc.NewService(checkoutsvc.Dependencies{
		Products:  productRepo,
		Purchases: purchaseRepo,
		Gateway:   billingClient,
		ReturnURL: cfg.AbacatePay.ReturnURL,
	})
	generationStorage := gensvc.NewS3Storage(s3Client, cfg.S3.Bucket)
	imageClient := gensvc.NewImageClient(
		httpclient.New(cfg.Generation.Timeout),
		cfg.Generation.APIURL,
		cfg.Generation.APIKey,
	)
	generationService := gensvc.NewService(gensvc.Dependencies{
		Store:     generationRepo,
		Profiles:  profileRepo,
		Generator: imageClient,
		Storage:   generationStorage,
		Logger:    log,
		PublicURL: cfg.S3.PublicURL,
		Width:     cfg.Generation.Width,
		Height:    cfg.Generation.Height,
	})
	confirmLimiter := ratesvc.NewLimiter(
		rateRepo,
		cfg.Billing.ConfirmMaxPerMinute,
		cfg.Billing.ConfirmMaxPer10Sec,
	)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		AuthService:       authService,
		PaymentService:    paymentService,
		CheckoutService:   checkoutService,
		GenerationService: generationService,
		ProfileService:    profileService,
		ConfirmLimiter:    confirmLimiter,
		Logger:            log,
		Config:            cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
