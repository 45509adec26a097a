package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pong-user-directory/config"
	"github.com/oksasatya/pong-user-directory/internal/application"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/search"
	"github.com/oksasatya/pong-user-directory/pkg/helpers"
)

// indexer consumes user events and keeps the Elasticsearch users index current.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-indexer", cfg.Env)

	if cfg.RabbitMQURL == "" || cfg.RabbitMQUserEventsQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}
	if len(cfg.ESAddrs()) == 0 {
		log.Fatal("Elasticsearch not configured")
	}

	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		log.Fatalf("elasticsearch: %v", err)
	}
	svc := application.NewService(nil, nil, search.NewUserIndex(es, cfg.ESUsersIndex), nil, logger)

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("amqp dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("amqp channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(16, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}
	if err := helpers.DeclareQueue(ch, cfg.RabbitMQUserEventsQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}
	msgs, err := ch.Consume(cfg.RabbitMQUserEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			handle(ctx, svc, logger, msg)
		}
	}()

	logger.WithField("queue", cfg.RabbitMQUserEventsQueue).Info("indexer listening")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down...")
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

// handle acks indexed events, drops malformed ones and requeues index failures.
func handle(ctx context.Context, svc *application.Service, logger *logrus.Logger, msg amqp.Delivery) {
	var ev application.UserEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		helpers.LogError(logger, "bad user event", err, logrus.Fields{"delivery_tag": msg.DeliveryTag})
		_ = msg.Nack(false, false)
		return
	}
	c, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := svc.HandleEvent(c, ev); err != nil {
		helpers.LogError(logger, "index user failed", err, logrus.Fields{"user_id": ev.User.ID, "event": ev.Type})
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}
	_ = msg.Ack(false)
}
