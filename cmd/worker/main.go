package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/acp-checkout/internal/config"
	"github.com/noah-isme/acp-checkout/internal/events"
	"github.com/noah-isme/acp-checkout/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	receipts := events.Receipts{Logger: logger}

	switch cfg.EventsBackend {
	case "kafka":
		reader := events.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, envOrDefault("WORKER_KAFKA_GROUP", "acp-receipts"))
		defer func() {
			if err := reader.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka reader")
			}
		}()
		logger.Info().Str("topic", cfg.KafkaTopic).Msg("worker starting")
		if err := receipts.ConsumeKafka(ctx, reader); err != nil {
			logger.Fatal().Err(err).Msg("kafka consumer stopped with error")
		}
	case "asynq":
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		srv := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: envInt("WORKER_CONCURRENCY", 4),
			Queues:      map[string]int{events.DefaultQueue: 1},
			Logger:      asynqLogger{logger: logger},
		})
		mux := asynq.NewServeMux()
		receipts.Register(mux)

		logger.Info().Str("queue", events.DefaultQueue).Msg("worker starting")
		if err := srv.Start(mux); err != nil {
			logger.Fatal().Err(err).Msg("start asynq server")
		}
		<-ctx.Done()
		srv.Shutdown()
	default:
		logger.Fatal().Str("events_backend", cfg.EventsBackend).Msg("worker needs EVENTS_BACKEND=asynq or kafka")
	}
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
