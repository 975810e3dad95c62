package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cyclecounts/traffic-pipeline/internal/aggregation"
	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/ingest"
	"github.com/cyclecounts/traffic-pipeline/internal/queue"
	"github.com/cyclecounts/traffic-pipeline/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "rollup").Logger()

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	aggregator := aggregation.NewWeeklyAggregator(db, logger)

	producer := queue.NewProducer(cfg.Kafka.BrokerList(), cfg.Kafka.TopicRuns)
	defer producer.Close()

	run := func() {
		started := time.Now()
		summary := &ingest.Summary{
			RunID:     uuid.NewString(),
			Job:       "rollup",
			StartedAt: started.UTC(),
		}

		rows, err := aggregator.Run()
		if err != nil {
			logger.Error().Err(err).Msg("weekly aggregation failed")
			summary.Error = err.Error()
		}
		summary.RowsWritten = int(rows)
		summary.DurationSeconds = time.Since(started).Seconds()
		publishSummary(producer, logger, summary)
	}

	// Sundays at 03:00 UTC, after the final hours of the completed week
	// have been synced.
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron("0 3 * * 0").Do(run); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule rollup job")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	logger.Info().Msg("rollup service running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
}

func publishSummary(producer *queue.Producer, logger zerolog.Logger, summary *ingest.Summary) {
	data, err := json.Marshal(summary)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal run summary")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := producer.Publish(ctx, summary.Job, data); err != nil {
		logger.Warn().Err(err).Msg("failed to publish run summary")
	}
}
