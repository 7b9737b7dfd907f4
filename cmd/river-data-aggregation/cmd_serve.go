package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/river-data-aggregation/internal/api/http"
	"github.com/i474232898/river-data-aggregation/internal/config"
	"github.com/i474232898/river-data-aggregation/internal/hydro"
	"github.com/i474232898/river-data-aggregation/internal/hydro/providers"
	"github.com/i474232898/river-data-aggregation/internal/scheduler"
	"github.com/i474232898/river-data-aggregation/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled watch jobs",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("port", "", "Listen port (default $PORT or 8080)")
	cmd.Flags().String("watch-file", "", "YAML file of watch jobs (default $WATCH_FILE)")
	cmd.Flags().String("archive-dir", "", "Also append every stored table to per-site CSV files here")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg := rt.cfg
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if path, _ := cmd.Flags().GetString("watch-file"); path != "" {
		jobs, err := config.LoadWatchFile(path)
		if err != nil {
			return err
		}
		cfg.Jobs = jobs
	}

	// The server always fetches fresh data.
	deps, err := rt.deps(true)
	if err != nil {
		return err
	}
	var clients []*hydro.Client
	for _, name := range providers.Names() {
		adapter, err := providers.New(name, deps)
		if err != nil {
			return err
		}
		c, err := hydro.NewClient(adapter, hydro.WithLogger(rt.logger))
		if err != nil {
			return err
		}
		clients = append(clients, c)
	}

	// Postgres when configured, otherwise an in-memory store with retention.
	var st hydro.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		st = pg
		rt.logger.Info("using postgres store")
	} else {
		st = store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	}

	service := hydro.NewService(st, clients, rt.logger)
	if dir, _ := cmd.Flags().GetString("archive-dir"); dir != "" {
		archive, err := store.NewCSVStore(dir)
		if err != nil {
			return err
		}
		service.SetArchive(archive)
	}

	// Scheduler that periodically fetches and stores data.
	sched := scheduler.New(cfg.Jobs, cfg.FetchInterval, 0, service, rt.logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := newApp(service)

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", "port", cfg.Port, "jobs", len(cfg.Jobs))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	// Wait for termination signal
	select {
	case <-cmd.Context().Done():
	case err := <-errCh:
		return fmt.Errorf("fiber server stopped: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		rt.logger.Error("error during shutdown", "error", err)
	}
	return nil
}

func newApp(service *hydro.Service) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "river-data-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "river-data-aggregation",
		})
	})

	httpapi.RegisterRoutes(app, service)
	return app
}
