package router

import (
	"github.com/oksasatya/pong-user-directory/internal/application"
	"github.com/oksasatya/pong-user-directory/internal/container"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/metrics"
	pginfra "github.com/oksasatya/pong-user-directory/internal/infrastructure/postgres"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/search"
	handlers "github.com/oksasatya/pong-user-directory/internal/interface/http"
	"github.com/oksasatya/pong-user-directory/internal/router/modules"
)

// buildUserHandler wires the user handler from container singletons.
func buildUserHandler() *handlers.UserHandler {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	var opts []pginfra.Option
	if box := container.GetSecretBox(); box != nil {
		opts = append(opts, pginfra.WithSecretSealer(box))
	}
	var repo repository.UserRepository = pginfra.NewUserRepository(container.GetPGPool(), opts...)

	if cfg.MetricsEnabled {
		collectors := metrics.NewCollectors()
		if err := collectors.Register(container.GetMetricsRegistry()); err != nil {
			logger.WithError(err).Warn("register repository metrics failed")
		} else {
			repo = metrics.NewUserRepository(repo, collectors)
		}
	}

	// Optional collaborators stay untyped nil when absent so the service can
	// tell them apart.
	var publisher application.Publisher
	if pub := container.GetRabbitPub(); pub != nil {
		publisher = pub
	}
	var index application.Index
	if es := container.GetES(); es != nil {
		index = search.NewUserIndex(es, cfg.ESUsersIndex)
	}

	svc := application.NewService(repo, publisher, index, nil, logger)
	if rdb := container.GetRedis(); rdb != nil {
		svc.Redis = rdb
	}
	svc.SearchCacheTTL = cfg.SearchCacheTTL

	return handlers.NewUserHandler(svc, logger)
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	cfg := container.GetConfig()
	r.Add(modules.NewUserModule(buildUserHandler(), container.GetRedis(), cfg.RateLimitPerMinute))
	r.Add(modules.NewHealthModule(handlers.NewHealthHandler(container.GetPGPool())))
	if cfg.MetricsEnabled {
		r.AddRoot(modules.NewMetricsModule(container.GetMetricsRegistry(), container.GetRedis()))
	}
}
