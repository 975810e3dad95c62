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

	"github.com/cyclecounts/traffic-pipeline/internal/archive"
	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/fetch"
	"github.com/cyclecounts/traffic-pipeline/internal/ingest"
	"github.com/cyclecounts/traffic-pipeline/internal/queue"
	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
	"github.com/cyclecounts/traffic-pipeline/pkg/config"
)

// runTimeout bounds one backfill pass. Backfill windows are large, so the
// budget is more generous than forward sync.
const runTimeout = 60 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateIngest(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "backfill").Logger()

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	var archiver ingest.Archiver
	if cfg.Archive.Enabled() {
		store, err := archive.New(cfg.Archive.Endpoint, cfg.Archive.AccessKey,
			cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.UseSSL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create archive store")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.EnsureBucket(ctx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("failed to prepare archive bucket")
		}
		cancel()
		archiver = store
		logger.Info().Str("bucket", cfg.Archive.Bucket).Msg("archiving enabled")
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	policy := fetch.Policy{
		MaxRetries:        cfg.Telraam.MaxRetries,
		InitialDelay:      cfg.Telraam.InitialDelay,
		MaxDelay:          cfg.Telraam.MaxDelay,
		RetryableStatuses: fetch.DefaultPolicy().RetryableStatuses,
	}
	client := telraam.NewClient(httpClient, cfg.Telraam.BaseURL, cfg.Telraam.APIKey, policy)

	writer := ingest.NewWriter(db, logger)
	planner := ingest.NewPlanner(db, client, writer, archiver,
		cfg.Ingest.BackfillDays, cfg.Ingest.BackfillBatchSize,
		cfg.Ingest.BackfillCallDelay, logger)

	producer := queue.NewProducer(cfg.Kafka.BrokerList(), cfg.Kafka.TopicRuns)
	defer producer.Close()

	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		summary, err := planner.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("backfill run failed")
			if summary == nil {
				summary = &ingest.Summary{Job: "backfill", StartedAt: time.Now().UTC()}
			}
			summary.Error = err.Error()
		}
		publishSummary(producer, logger, summary)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron("30 2 * * *").Do(run); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule backfill job")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	logger.Info().Msg("backfill service running")

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
