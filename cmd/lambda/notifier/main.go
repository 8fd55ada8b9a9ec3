package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/ec-shop-core/internal/config"
	"github.com/example/ec-shop-core/internal/email"
	"github.com/example/ec-shop-core/internal/infrastructure/kafka"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/notification"
)

var notificationHandler *notification.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Lambda Notifier] Invalid configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("[Lambda Notifier] DATABASE_URL is required")
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Lambda Notifier] Failed to connect to PostgreSQL: %v", err)
	}

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	notificationHandler = notification.NewHandler(emailSvc, store.NewPostgresStore(db))

	log.Printf("[Lambda Notifier] Initialized successfully (SMTP: %s:%s)", cfg.SMTPHost, cfg.SMTPPort)
}

// handler is invoked by a Kafka event source mapping on the events topic
func handler(ctx context.Context, kafkaEvent events.KafkaEvent) error {
	result, err := kafka.HandleLambdaEvent(ctx, kafkaEvent, notificationHandler.HandleEvent)
	log.Printf("[Lambda Notifier] Processed %d records, %d failed", result.Processed, result.Failed)
	return err
}

func main() {
	lambda.Start(handler)
}
