// Command procured runs the procurement API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernwood/procure/internal/blob"
	"github.com/fernwood/procure/internal/config"
	"github.com/fernwood/procure/internal/effects"
	"github.com/fernwood/procure/internal/events"
	"github.com/fernwood/procure/internal/extract"
	"github.com/fernwood/procure/internal/resource"
	"github.com/fernwood/procure/internal/schema"
	"github.com/fernwood/procure/internal/server"
	"github.com/fernwood/procure/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	// Event publisher.
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		publisher = &events.NoopPublisher{}
		logger.Info("events disabled (PROCURE_NATS_URL not set)")
	}
	defer publisher.Close()

	// Blob storage.
	var blobs blob.Store
	if cfg.BlobS3Bucket != "" {
		blobs, err = blob.NewS3Store(context.Background(), cfg.BlobS3Bucket, cfg.BlobS3Region, cfg.BlobS3Endpoint)
		if err != nil {
			return err
		}
		logger.Info("blob storage on S3", "bucket", cfg.BlobS3Bucket)
	} else {
		blobs = blob.NewMemory()
		logger.Warn("blob storage in memory, uploads are lost on restart (PROCURE_BLOB_S3_BUCKET not set)")
	}

	// Document extraction.
	var extractor extract.Extractor
	if cfg.ExtractorURL != "" {
		extractor = extract.NewHTTPExtractor(cfg.ExtractorURL, cfg.ExtractorTimeout)
		logger.Info("document extraction enabled", "url", cfg.ExtractorURL)
	}

	broadcaster := server.NewBroadcaster(publisher)

	// With NATS, feed the SSE stream from the bus so clients of any
	// instance see events from every instance.
	if cfg.NATSURL != "" {
		sub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer sub.Close()
		stop, err := broadcaster.BridgeSubscriber(sub, "procure.>")
		if err != nil {
			return err
		}
		defer stop()
	}

	schemas := schema.NewService(store, logger)
	engine := effects.New(store, extractor, logger)
	resources := resource.NewService(store, engine, broadcaster, logger)
	srv := server.New(schemas, resources, blobs, broadcaster, logger)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.LoggingMiddleware(logger, srv.NewHTTPHandler(cfg.AuthToken)),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
	}
	logger.Info("shutdown complete")
	return nil
}
