package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pong-user-directory/config"
	"github.com/oksasatya/pong-user-directory/internal/container"
	pginfra "github.com/oksasatya/pong-user-directory/internal/infrastructure/postgres"
	"github.com/oksasatya/pong-user-directory/internal/interface/middleware"
	"github.com/oksasatya/pong-user-directory/internal/router"
	"github.com/oksasatya/pong-user-directory/pkg/helpers"
	"github.com/oksasatya/pong-user-directory/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()

	if cfg.RunMigrations {
		if err := pginfra.Migrate(cfg.PostgresDSN(), logger); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable; rate limiting and search cache fail open")
	}

	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetPGPool(pool)
	container.SetRedis(rdb)

	if cfg.TFASecretKey != "" {
		box, err := helpers.NewSecretBox(cfg.TFASecretKey)
		if err != nil {
			log.Fatalf("invalid TFA_SECRET_KEY: %v", err)
		}
		container.SetSecretBox(box)
	}

	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.WithError(err).Warn("elasticsearch disabled")
		} else {
			container.SetES(es)
		}
	}

	if cfg.RabbitMQURL != "" {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQUserEventsQueue)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq disabled; indexing users inline")
		} else {
			container.SetRabbitPub(pub)
			defer pub.Close()
		}
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies())
	if err != nil {
		log.Fatalf("invalid TRUSTED_PROXIES: %v", err)
	}

	// Gin engine and global middleware
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies()); err != nil {
		log.Fatalf("invalid TRUSTED_PROXIES: %v", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(), middleware.RealIP(trusted))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins(),
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader, "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(logger))
	}

	// Registry: auto-register modules using container
	reg := router.NewRegistry(r)
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	waitForShutdown(srv, logger)
}

func waitForShutdown(srv *http.Server, logger *logrus.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}
	logger.Info("server exited properly")
}
