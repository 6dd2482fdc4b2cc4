package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sealkeep/sessionvault/internal/api/http/handler"
	"github.com/sealkeep/sessionvault/internal/api/http/router"
	httpserver "github.com/sealkeep/sessionvault/internal/api/http/server"
	"github.com/sealkeep/sessionvault/internal/audit"
	"github.com/sealkeep/sessionvault/internal/config"
	"github.com/sealkeep/sessionvault/internal/logger"
	"github.com/sealkeep/sessionvault/internal/model"
	"github.com/sealkeep/sessionvault/internal/repository/postgres"
	redisrepo "github.com/sealkeep/sessionvault/internal/repository/redis"
	"github.com/sealkeep/sessionvault/internal/service"
	"github.com/sealkeep/sessionvault/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	auditSink, err := buildAuditSink(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize audit sink", "error", err)
	}

	tokenRepo := postgres.NewRefreshTokenRepository(db)
	invalidator := redisrepo.NewSessionVersionStore(redisClient)
	tokenManager := token.NewManager(cfg.Token.Secret, cfg.Token.AccessTTL)
	tokenService := service.NewTokenService(tokenRepo, invalidator, auditSink, logger, cfg.Token.RotationLifetime)

	sessions := handler.NewSessionHandler(tokenService, invalidator, tokenManager, logger)
	srv := httpserver.NewHTTPServer(router.New(sessions, logger), fmt.Sprintf(":%s", cfg.HTTP.Port))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting server", "address", srv.Address())
		if err := srv.Start(); err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

// buildAuditSink always includes the structured log sink; the object-store
// archive is added when configured.
func buildAuditSink(ctx context.Context, cfg *config.Config, logger *logger.Logger) (model.AuditSink, error) {
	sinks := []model.AuditSink{audit.NewLogSink(logger)}

	if cfg.Audit.ArchiveEnabled {
		minioClient, err := minio.New(cfg.Audit.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Audit.AccessKey, cfg.Audit.SecretKey, ""),
			Secure: cfg.Audit.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		archive, err := audit.NewArchiveSink(ctx, minioClient, cfg.Audit.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit archive: %w", err)
		}
		sinks = append(sinks, archive)
	}

	return audit.NewDispatcher(sinks...), nil
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
