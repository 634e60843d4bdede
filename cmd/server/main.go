package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bankline/complaints/internal/ai"
	"github.com/bankline/complaints/internal/config"
	"github.com/bankline/complaints/internal/db"
	"github.com/bankline/complaints/internal/events"
	httpapi "github.com/bankline/complaints/internal/http"
	"github.com/bankline/complaints/internal/lock"
	"github.com/bankline/complaints/internal/service"
	"github.com/bankline/complaints/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "complaints").Logger()

	ctx := context.Background()

	var store db.Database
	if cfg.DatabaseURL == "" {
		store = db.NewMemoryStore()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
	} else {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate db")
		}
		store = pg
	}
	defer store.Close()

	var classifier ai.Classifier = ai.RuleClassifier{}
	if cfg.AssistantBaseURL != "" {
		classifier = ai.NewLLMClassifier(&ai.OpenAICompatAssistant{
			BaseURL:   cfg.AssistantBaseURL,
			Model:     cfg.AssistantModel,
			APIKey:    cfg.AssistantAPIKey,
			MaxTokens: cfg.AssistantMaxTokens,
			JSONMode:  true,
		})
		logger.Info().Str("model", cfg.AssistantModel).Msg("using assistant classifier")
	} else {
		logger.Info().Msg("using rule classifier")
	}

	var locker lock.Locker = &lock.Local{}
	if cfg.RedisURL != "" {
		rl, err := lock.NewRedis(cfg.RedisURL, cfg.LockTTL, cfg.LockWait, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rl.Close()
		locker = rl
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer nc.Close()
		publisher = nc
	}

	var presigner storage.Presigner = storage.Disabled{}
	if cfg.S3Bucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Expiry:    cfg.S3PresignExpiry,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure s3")
		}
		presigner = s3
	}

	policy, _ := service.ParseAssignmentPolicy(cfg.AssignmentPolicy)
	source, _ := service.ParseLoadSource(cfg.LoadSource)

	assigner := &service.Assigner{
		Store:      store,
		Locker:     locker,
		Events:     publisher,
		LoadSource: source,
		Logger:     logger,
	}
	lifecycle := &service.Lifecycle{
		Store:                store,
		Readiness:            classifier,
		Categorizer:          classifier,
		Assigner:             assigner,
		Locker:               locker,
		Events:               publisher,
		Policy:               policy,
		MaxReferenceAttempts: cfg.ReferenceMaxAttempts,
		ClassifierTimeout:    cfg.ClassifierTimeout,
		Logger:               logger,
	}

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:     store,
		Lifecycle: lifecycle,
		Assigner:  assigner,
		Storage:   presigner,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("policy", string(policy)).Str("load_source", string(source)).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
