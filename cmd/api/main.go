package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"marketplace/auth"
	"marketplace/cache"
	"marketplace/config"
	"marketplace/db"
	"marketplace/filestore"
	"marketplace/identity"
	"marketplace/logging"
	"marketplace/user"
	"marketplace/vendorprofile"
)

const jwksRefresh = 15 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MaxConnIdleTime: cfg.DBMaxIdleTime,
		MaxConnLifetime: cfg.DBMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	phoneIndex := cache.New(cfg.RedisAddr, cfg.RedisPassword)
	defer phoneIndex.Close()
	if err := phoneIndex.Ping(ctx); err != nil {
		// Lookups fall back to the provider while the index is down.
		logger.Warn("phone index unavailable", zap.Error(err))
	}

	awsCfg, err := cfg.AWS.SDKConfig(ctx)
	if err != nil {
		return err
	}
	tenants := identity.NewTenants(cfg.Cognito)
	provider := identity.NewCognitoProvider(identity.NewCognitoClient(awsCfg), tenants, logger)

	keys := identity.NewJWKCache(ctx, jwksRefresh)
	verifier := identity.NewTokenVerifier(cfg.AWS.Region, tenants, keys)
	for _, url := range verifier.JWKSURLs() {
		if err := keys.Register(url); err != nil {
			return err
		}
	}
	if err := verifier.Warm(ctx); err != nil {
		logger.Warn("jwks warm-up failed", zap.Error(err))
	}

	userRepo := user.NewRepository()
	users := user.NewService(pool, userRepo, logger.Named("user"))
	profiles := vendorprofile.NewService(pool, vendorprofile.NewRepository(), userRepo, logger.Named("vendorprofile"))
	authSvc := auth.NewService(auth.Deps{
		Pool:     pool,
		Users:    userRepo,
		Profiles: profiles,
		Provider: provider,
		Phones:   identity.NewPhoneResolver(provider, phoneIndex, cfg.PhoneIndexTTL, logger.Named("phones")),
		Tokens:   verifier,
		Logger:   logger.Named("auth"),
	})

	var files fileStore
	if cfg.S3Bucket != "" {
		files = filestore.New(filestore.NewClient(awsCfg), cfg.S3Bucket, cfg.AWS.Region, logger.Named("filestore"))
	} else {
		logger.Warn("AWS_S3_BUCKET_NAME not set; file uploads disabled")
	}

	server := newServer(authSvc, users, profiles, files, logger.Named("http"))
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.routes(serverOptions{
			corsOrigins:    cfg.CORSOrigins,
			requestTimeout: cfg.RequestTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
