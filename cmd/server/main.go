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

	"mockcrm-backend/internal/bus"
	"mockcrm-backend/internal/config"
	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/monitor"
	"mockcrm-backend/internal/scenario"
	"mockcrm-backend/internal/seed"
	"mockcrm-backend/internal/store"
	"mockcrm-backend/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ERROR: load config: %v", err)
	}

	ctx := context.Background()

	if cfg.Database.IsSQLite() {
		if err := os.MkdirAll(cfg.Database.Path, 0o755); err != nil {
			log.Fatalf("ERROR: create data directory: %v", err)
		}
	}

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("ERROR: open store: %v", err)
	}
	defer st.Close()
	log.Printf("Connected to %s database", st.Dialect.Name())

	registry := metadata.NewRegistry()
	registry.Load(metadata.Catalog())
	log.Printf("Loaded %d schemas for tenants: %v", len(registry.All()), registry.Tenants())

	if err := st.Bootstrap(ctx, registry); err != nil {
		log.Fatalf("ERROR: bootstrap: %v", err)
	}
	if err := store.NewMigrator(st).MigrateAll(ctx, registry); err != nil {
		log.Fatalf("ERROR: migrate: %v", err)
	}
	if err := seed.Run(ctx, st, registry, cfg.Seed); err != nil {
		log.Fatalf("ERROR: seed: %v", err)
	}

	eventBus := bus.New()

	configs := webhook.NewConfigStore(st, registry)
	scheduler := webhook.NewScheduler()
	deliverer := webhook.NewDeliverer(st, configs, eventBus, cfg.Webhook, scheduler)
	queue := webhook.NewQueue(st, configs, deliverer, scheduler)

	changes := engine.NewChangeRecorder(st, eventBus)
	resources := engine.NewResources(st, changes, queue)
	simulator := engine.NewSimulator(
		time.Duration(cfg.Simulation.WindowMs)*time.Millisecond,
		cfg.Simulation.ErrorRate,
	)

	runner := scenario.NewRunner(st, registry, resources, simulator)
	latency := scenario.NewLatencyTests(st, registry, resources, runner)

	app := fiber.New(fiber.Config{
		AppName:      "mock-crm-backend",
		ErrorHandler: engine.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "database": st.Dialect.Name()})
	})
	bus.RegisterStreamRoutes(app, eventBus)

	api := app.Group("/api")
	webhook.RegisterRoutes(api, webhook.NewHandler(st, registry, configs, deliverer))
	monitor.RegisterRoutes(api, monitor.NewHandler(st, registry, changes))
	scenario.RegisterRoutes(api, scenario.NewHandler(runner, latency))
	// Parametric resource routes go last so the named groups above win.
	engine.RegisterRoutes(api, engine.NewHandler(registry, resources), simulator,
		monitor.Middleware(st, eventBus))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Printf("Listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("ERROR: listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	if err := app.Shutdown(); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}
