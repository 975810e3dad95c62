package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/monitoring"
	"github.com/cyclecounts/traffic-pipeline/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "monitor").Logger()

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	monitor := monitoring.NewMonitor(db)
	cache := monitoring.NewSnapshotCache(redisClient, cfg.Monitor.CacheTTL)

	app := fiber.New(fiber.Config{
		AppName:               "traffic-monitor",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "traffic-monitor",
		})
	})

	app.Get("/api/v1/monitoring", func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		snapshot, err := cache.Get(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("snapshot cache read failed")
		}

		if snapshot == nil {
			snapshot, err = monitor.Snapshot()
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError,
					"unable to fetch monitoring data")
			}
			if err := cache.Set(ctx, snapshot); err != nil {
				logger.Warn().Err(err).Msg("snapshot cache write failed")
			}
		}

		c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		return c.JSON(fiber.Map{
			"success": true,
			"data":    snapshot,
		})
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitor.Port)
		logger.Info().Str("addr", addr).Msg("monitor API listening")
		if err := app.Listen(addr); err != nil {
			logger.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
