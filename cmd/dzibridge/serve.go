package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/dzibridge/internal/api"
	"github.com/newthinker/dzibridge/internal/api/job"
	"github.com/newthinker/dzibridge/internal/app"
	"github.com/newthinker/dzibridge/internal/config"
	"github.com/newthinker/dzibridge/internal/logger"
	"github.com/newthinker/dzibridge/internal/metrics"
	"github.com/newthinker/dzibridge/internal/notifier/webhook"
	"github.com/newthinker/dzibridge/internal/storage/archive"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dzibridge server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc, reg, err := buildService(cfg, log)
	if err != nil {
		return err
	}

	log.Info("starting dzibridge server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("output_dir", svc.OutputDir()),
		zap.Int("workers", cfg.Converter.Workers),
	)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		MetricsPath: metricsPath,
	}, api.Dependencies{
		Service:  svc,
		JobStore: job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour),
		Metrics:  reg,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down dzibridge server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}

// buildService wires the service with the optional publisher, notifier and
// metrics registry selected by cfg.
func buildService(cfg *config.Config, log *zap.Logger) (*app.Service, *metrics.Registry, error) {
	svc, err := app.New(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating service: %w", err)
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		svc.SetMetrics(reg)
	}

	if cfg.Publish.Enabled {
		store, err := archive.New(cfg.Publish)
		if err != nil {
			return nil, nil, fmt.Errorf("creating publish storage: %w", err)
		}
		svc.SetPublisher(store)
		log.Info("publishing bundles", zap.String("type", cfg.Publish.Type))
	}

	if cfg.Notify.Webhook.Enabled {
		if err := svc.RegisterNotifier(webhook.New(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Headers)); err != nil {
			return nil, nil, err
		}
	}
	if names := svc.Notifiers(); len(names) > 0 {
		log.Info("notifiers registered", zap.Strings("names", names))
	}

	return svc, reg, nil
}
