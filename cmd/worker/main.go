package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/mudichurmart/storefront/internal/aws"
	"github.com/mudichurmart/storefront/internal/config"
	"github.com/mudichurmart/storefront/internal/logger"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	lg := logger.New(logger.Options{
		Service: "storefront-worker",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
		Pretty:  cfg.RunLocal,
	})

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		lg.Fatal().Err(err).Msg("init aws clients")
	}

	p := NewProcessor(clients, Tables{
		Orders:      cfg.Tables.Orders,
		Products:    cfg.Tables.Products,
		Idempotency: cfg.Tables.Idempotency,
	}, cfg.IdempotencyTTL, cfg.MetricsNamespace, lg)

	// RUN_LOCAL feeds a single message from LOCAL_SQS_BODY through the handler.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			b, _ := json.Marshal(map[string]string{"order_id": "local-order-1"})
			body = string(b)
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			lg.Fatal().Err(err).Int("failures", len(resp.BatchItemFailures)).Msg("local handler error")
		}
		return
	}

	lambda.Start(p.Handle)
}
