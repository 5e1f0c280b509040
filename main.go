package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"sales-portal/api"
	"sales-portal/blobstore"
	"sales-portal/completion"
	"sales-portal/config"
	"sales-portal/events"
	"sales-portal/registry"
	"sales-portal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	configureLogger(logger, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer closeStore()

	var (
		rc      *redis.Client
		locks   blobstore.Locker = blobstore.NewLocalLocker()
		drafts  workflow.DraftStore
		deduper api.Deduper
	)
	if opts := cfg.Redis.RedisOptions(); opts != nil {
		rc = redis.NewClient(opts)
		defer rc.Close()
		store = blobstore.NewCache(store, rc, cfg.Redis.CacheTTL)
		locks = blobstore.NewRedisLocker(rc, cfg.Redis.LockTTL)
		drafts = workflow.NewRedisDraftStore(rc, cfg.Redis.DraftTTL)
		deduper = api.NewRedisDeduper(rc, cfg.Redis.DeduperTTL)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set; drafts and locks are local to this instance")
		drafts = workflow.NewMemoryDraftStore()
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Queue != "" {
		qp, err := events.NewQueuePublisher(cfg.Storage.ConnectionString, cfg.Events.Queue)
		if err != nil {
			logger.Fatalf("events: %v", err)
		}
		dispatcher := events.NewDispatcher(qp, events.DispatcherConfig{
			Workers:        cfg.Events.Workers,
			Buffer:         cfg.Events.Buffer,
			PublishTimeout: cfg.Events.PublishTimeout,
			HandoffTimeout: cfg.Events.HandoffTimeout,
		}, logger)
		defer dispatcher.Close()
		publisher = dispatcher
	}

	customers := registry.NewCustomers(store, locks, logger)
	customers.SetFetchConcurrency(cfg.Storage.FetchConcurrency)
	tasks := registry.NewTasks(store, locks, publisher, logger)
	tasks.SetFetchConcurrency(cfg.Storage.FetchConcurrency)
	reps := registry.NewRepresentatives(store, logger)

	completer, err := newCompleter(ctx, cfg.Completion)
	if err != nil {
		logger.Fatalf("completion: %v", err)
	}
	adapter := completion.NewAdapter(completer, logger)

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.RequestMetrics(logger))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, api.Deps{
		Customers:       customers,
		Tasks:           tasks,
		Representatives: reps,
		Completion:      adapter,
		Workflow:        workflow.NewService(customers, reps, tasks, adapter, logger),
		Drafts:          drafts,
		Auth:            auth,
		Internal:        api.NewSecretGate(cfg.Auth.InternalSecret),
		Deduper:         deduper,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	}, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	listenAddr := ":" + strconv.Itoa(cfg.Server.Port)
	logger.WithFields(log.Fields{"addr": listenAddr, "backend": cfg.Storage.Backend}).Info("sales portal listening")
	if err := e.Start(listenAddr); err != nil && ctx.Err() == nil {
		logger.Fatalf("server: %v", err)
	}
}

func configureLogger(logger *log.Logger, cfg config.LogConfig) {
	if lvl, err := log.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (blobstore.Store, func(), error) {
	switch cfg.Backend {
	case "table":
		t, err := blobstore.NewTable(cfg.ConnectionString, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		if err := t.EnsureTable(ctx); err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil
	case "bucket":
		b, err := blobstore.NewBucket(ctx, blobstore.BucketOptions{
			Name:            cfg.Bucket,
			Endpoint:        cfg.Endpoint,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case "memory":
		return blobstore.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}

func newCompleter(ctx context.Context, cfg config.CompletionConfig) (completion.Completer, error) {
	if cfg.Provider == "gemini" {
		return completion.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.Timeout)
	}
	return completion.NewChatClient(completion.ChatOptions{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}), nil
}

func newAuth(cfg config.AuthConfig) (*api.Auth, error) {
	if cfg.TestMode {
		return api.NewAuth(nil, api.AuthOptions{TestSecret: cfg.TestSecret, KeyCacheTTL: cfg.JWKSCacheTTL}), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, api.AuthOptions{
		Audience:    cfg.Audience,
		Issuer:      "https://" + cfg.Domain + "/",
		KeyCacheTTL: cfg.JWKSCacheTTL,
	}), nil
}
