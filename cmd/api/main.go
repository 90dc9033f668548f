package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"trustlens/internal/config"
	"trustlens/internal/db"
	"trustlens/internal/domain"
	"trustlens/internal/email"
	apihttp "trustlens/internal/http"
	"trustlens/internal/inference"
	"trustlens/internal/privacy"
	"trustlens/internal/repository"
	"trustlens/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	uploadRepo := repository.NewPgUploadRepository(pool)
	scoreRepo := repository.NewPgScoreRepository(pool)
	flagRepo := repository.NewPgBiasFlagRepository(pool)

	var (
		redisClient   *redis.Client
		contentStore  service.ContentStore
		uploadLimiter service.UploadRateLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			store, err := service.NewRedisContentStore(redisClient, cfg.ContentEncryptionKey)
			if err != nil {
				logger.Fatal("content store init", zap.Error(err))
			}
			contentStore = store
			uploadLimiter = service.NewRedisUploadRateLimiter(
				redisClient,
				time.Duration(cfg.UploadRateWindowMinutes)*time.Minute,
				cfg.UploadRateMax,
			)
		}
		cancel()
	}
	if contentStore == nil {
		store, err := service.NewMemoryContentStore(cfg.ContentEncryptionKey)
		if err != nil {
			logger.Fatal("content store init", zap.Error(err))
		}
		contentStore = store
	}
	if uploadLimiter == nil {
		uploadLimiter = service.NewUploadRateLimiter(
			time.Duration(cfg.UploadRateWindowMinutes)*time.Minute,
			cfg.UploadRateMax,
		)
	}

	var inferrer inference.Client
	if cfg.InferenceAPIKey != "" {
		inferrer = inference.NewHTTPClient(
			cfg.InferenceBaseURL,
			cfg.InferenceAPIKey,
			time.Duration(cfg.InferenceTimeoutSeconds)*time.Second,
			cfg.InferenceMaxAttempts,
			cfg.InferenceMaxMessages,
			logger,
		)
	} else {
		logger.Warn("inference api key not configured, using lexical analyzer")
		inferrer = inference.NewLexicalAnalyzer()
	}

	engine := service.NewScoringEngine(
		cfg.RiskLowThreshold,
		cfg.RiskMediumThreshold,
		time.Duration(cfg.ScoreValidityDays)*24*time.Hour,
	)
	auditor := service.NewBiasAuditor(service.BiasPolicy{
		ConfidenceFloor:  cfg.BiasConfidenceFloor,
		ExtremeLow:       cfg.BiasExtremeLow,
		ExtremeHigh:      cfg.BiasExtremeHigh,
		CohortSigma:      cfg.BiasCohortSigma,
		CohortMinSamples: cfg.BiasCohortMinSamples,
		ShrinkFactor:     cfg.BiasShrinkFactor,
		WithholdSeverity: domainSeverity(cfg.BiasWithholdSeverity),
	}, engine, logger)

	var notifier service.ReviewNotifier
	if cfg.SMTPHost != "" && cfg.ReviewerEmail != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else if n := email.NewReviewNotifier(sender, cfg.ReviewerEmail); n != nil {
			notifier = n
		}
	}

	uploadSvc := service.NewUploadService(
		logger,
		uploadRepo,
		scoreRepo,
		flagRepo,
		contentStore,
		privacy.NewSanitizer(logger),
		inferrer,
		engine,
		auditor,
		notifier,
		uploadLimiter,
		service.UploadPolicy{
			MaxBytes:      cfg.MaxUploadBytes,
			MinMessages:   cfg.MinMessages,
			MaxConcurrent: cfg.MaxConcurrent,
			Retention:     time.Duration(cfg.RetentionHours) * time.Hour,
		},
	)

	cleanupSvc, err := service.NewCleanupService(
		logger,
		uploadRepo,
		contentStore,
		time.Duration(cfg.CleanupIntervalMinutes)*time.Minute,
	)
	if err != nil {
		logger.Fatal("cleanup init", zap.Error(err))
	}
	if err := cleanupSvc.Start(); err != nil {
		logger.Fatal("cleanup start", zap.Error(err))
	}
	defer cleanupSvc.Stop()

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	uploadHandler := apihttp.NewUploadHandler(logger, uploadSvc, cfg.MaxUploadBytes)
	analysisHandler := apihttp.NewAnalysisHandler(logger, uploadSvc)
	router := apihttp.NewRouter(logger, jwtSvc, uploadHandler, analysisHandler, func(ctx context.Context) error {
		return db.Ping(ctx, pool)
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func domainSeverity(s string) domain.BiasSeverity {
	switch s {
	case "low":
		return domain.SeverityLow
	case "medium":
		return domain.SeverityMedium
	case "high":
		return domain.SeverityHigh
	default:
		return domain.SeverityCritical
	}
}
