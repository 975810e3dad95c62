package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/fetch"
	"github.com/cyclecounts/traffic-pipeline/internal/ingest"
	"github.com/cyclecounts/traffic-pipeline/internal/queue"
	"github.com/cyclecounts/traffic-pipeline/internal/retention"
	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
	"github.com/cyclecounts/traffic-pipeline/pkg/config"
)

// runTimeout bounds one sync pass; it aborts the whole run, keeping only
// the upserts already committed.
const runTimeout = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateIngest(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "sync").Logger()

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	policy := fetch.Policy{
		MaxRetries:        cfg.Telraam.MaxRetries,
		InitialDelay:      cfg.Telraam.InitialDelay,
		MaxDelay:          cfg.Telraam.MaxDelay,
		RetryableStatuses: fetch.DefaultPolicy().RetryableStatuses,
	}
	client := telraam.NewClient(httpClient, cfg.Telraam.BaseURL, cfg.Telraam.APIKey, policy)

	writer := ingest.NewWriter(db, logger)
	pruner := retention.NewPruner(db, cfg.Ingest.RetentionDays, logger)
	engine := ingest.NewEngine(db, client, writer, pruner, cfg.Ingest.SyncCallDelay, logger)

	producer := queue.NewProducer(cfg.Kafka.BrokerList(), cfg.Kafka.TopicRuns)
	defer producer.Close()

	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		summary, err := engine.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("sync run failed")
			if summary == nil {
				summary = &ingest.Summary{Job: "sync", StartedAt: time.Now().UTC()}
			}
			summary.Error = err.Error()
		}
		publishSummary(producer, logger, summary)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron("5 * * * *").Do(run); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule sync job")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	logger.Info().Msg("sync service running")

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
