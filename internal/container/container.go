package container

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pong-user-directory/config"
	"github.com/oksasatya/pong-user-directory/pkg/helpers"
)

// app-level container to share constructed components across packages
// Router can auto-wire modules from these singletons.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	rabbitPub   *helpers.RabbitPublisher
	esClient    *elasticsearch.Client
	secretBox   *helpers.SecretBox
	metricsReg  *prometheus.Registry
)

func SetConfig(c *config.Config)              { cfg = c }
func GetConfig() *config.Config               { return cfg }
func SetLogger(l *logrus.Logger)              { logger = l }
func GetLogger() *logrus.Logger               { return logger }
func SetPGPool(p *pgxpool.Pool)               { pgPool = p }
func GetPGPool() *pgxpool.Pool                { return pgPool }
func SetRedis(r *redis.Client)                { redisClient = r }
func GetRedis() *redis.Client                 { return redisClient }
func SetRabbitPub(p *helpers.RabbitPublisher) { rabbitPub = p }
func GetRabbitPub() *helpers.RabbitPublisher  { return rabbitPub }
func SetES(c *elasticsearch.Client)           { esClient = c }
func GetES() *elasticsearch.Client            { return esClient }
func SetSecretBox(b *helpers.SecretBox)       { secretBox = b }
func GetSecretBox() *helpers.SecretBox        { return secretBox }

func SetMetricsRegistry(r *prometheus.Registry) { metricsReg = r }

// GetMetricsRegistry returns the registry served at /metrics, creating one
// with the Go and process collectors on first use.
func GetMetricsRegistry() *prometheus.Registry {
	if metricsReg == nil {
		metricsReg = prometheus.NewRegistry()
		metricsReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return metricsReg
}
