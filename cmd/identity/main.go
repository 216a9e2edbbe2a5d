package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	myPostgresRepo "github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/db/postgres"
	myRedisRepo "github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/db/redis"
	myGrpc "github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/transport/grpc"
	myHttp "github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/transport/http"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/app/identity/jwt"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/app/identity/password"
	appsvc "github.com/Miraines/MoonyAndStarry/identity-service/internal/app/identity/service"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/repo"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/migrate"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/server"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// openStore returns the configured user repository and a close function.
func openStore(cfg *config.Config, log *zap.Logger) (repo.UserRepo, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		redisCli := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("using redis user store", zap.String("addr", cfg.RedisAddress))
		return myRedisRepo.NewRedisUserRepo(redisCli), func() { _ = redisCli.Close() }, nil

	default:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to database")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errors.Wrap(err, "db handle")
		}
		if err := migrate.Up(sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		log.Info("using postgres user store")
		return myPostgresRepo.NewPostgresUserRepo(db), func() { _ = sqlDB.Close() }, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		lg.Must("").Fatal("failed to load config", zap.Error(err))
	}

	zapLog := lg.Must(cfg.LogLevel)
	defer zapLog.Sync()

	userRepo, closeStore, err := openStore(cfg, zapLog)
	if err != nil {
		zapLog.Fatal("failed to open user store", zap.Error(err))
	}
	defer closeStore()

	hasher, err := password.New(cfg.PasswordScheme, cfg.BcryptCost)
	if err != nil {
		zapLog.Fatal("failed to init password hasher", zap.Error(err))
	}
	jwtUtil, err := jwt.NewJWTUtil(cfg)
	if err != nil {
		zapLog.Fatal("failed to init JWT util", zap.Error(err))
	}
	svc, err := appsvc.New(userRepo, hasher, jwtUtil, nil)
	if err != nil {
		zapLog.Fatal("failed to init identity service", zap.Error(err))
	}

	m := metrics.New(nil)
	router := myHttp.NewRouter(myHttp.NewHandler(svc, userRepo, zapLog, m), cfg, nil)
	healthHandler := myGrpc.NewHealthHandler(userRepo, zapLog)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		return server.StartGRPCServer(ctx, cfg, healthHandler, zapLog)
	})

	g.Go(func() error {
		zapLog.Info("HTTP server listening",
			zap.String("addr", cfg.HTTPAddress),
			zap.Bool("tls", cfg.TLSEnabled()),
		)
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.HTTPSCertFile, cfg.HTTPSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve HTTP")
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		zapLog.Info("shutdown signal received")
	case <-ctx.Done():
		zapLog.Warn("server exited early")
	}
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLog.Error("shutdown error", zap.Error(err))
	}
	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
	}
}
