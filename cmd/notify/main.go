package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/cyclecounts/traffic-pipeline/internal/notification"
	"github.com/cyclecounts/traffic-pipeline/internal/queue"
	"github.com/cyclecounts/traffic-pipeline/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "notify").Logger()

	notifier := notification.NewEmailNotifier(&cfg.SMTP)
	if err := notifier.TestConnection(); err != nil {
		logger.Warn().Err(err).Msg("SMTP not reachable, notifications will be logged only")
	}

	consumer := queue.NewConsumer(cfg.Kafka.BrokerList(), cfg.Kafka.TopicRuns, "notify-group")
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Msg("notification service running")

	go func() {
		for {
			msg, err := consumer.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("failed to consume message")
				continue
			}

			summary, err := queue.ParseRunSummary(msg.Value)
			if err != nil {
				logger.Error().Err(err).Msg("failed to parse run summary")
				// Commit anyway: a malformed message will never parse.
				_ = consumer.Commit(ctx, msg)
				continue
			}

			if summary.Failed() {
				logger.Warn().
					Str("run_id", summary.RunID).
					Str("job", summary.Job).
					Int("sensors_errored", summary.SensorsErrored).
					Str("error", summary.Error).
					Msg("run reported failures")

				if err := notifier.SendRunFailure(summary); err != nil {
					logger.Error().Err(err).Msg("failed to send notification email")
				}
			}

			if err := consumer.Commit(ctx, msg); err != nil {
				logger.Error().Err(err).Msg("failed to commit message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
}
