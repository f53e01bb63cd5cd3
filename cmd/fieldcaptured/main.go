package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/blobstore"
	"fieldcapture/internal/config"
	"fieldcapture/internal/dispatch"
	"fieldcapture/internal/ingest"
	"fieldcapture/internal/logging"
	"fieldcapture/internal/scorer"
	"fieldcapture/internal/server"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	assets, err := asset.Open(cfg.ServerDBPath())
	if err != nil {
		logger.Error("open asset store", logging.Error(err))
		return
	}
	records, err := ingest.NewRecordStore(assets.DB())
	if err != nil {
		logger.Error("open capture store", logging.Error(err))
		assets.Close()
		return
	}
	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		logger.Error("open blob store", logging.Error(err))
		assets.Close()
		return
	}

	pool := dispatch.New(assets, blobs, dispatch.Options{
		Workers:        cfg.Server.DispatchWorkers,
		QueueDepth:     cfg.Server.DispatchQueueDepth,
		ThumbnailMaxPx: cfg.Server.ThumbnailMaxPx,
		PreviewMaxPx:   cfg.Server.PreviewMaxPx,
	}, logger)
	scoreClient := scorer.New(cfg.Scorer)
	svc := ingest.NewService(assets, records, pool, scoreClient, blobs, logger)

	d, err := server.New(cfg, assets, svc, blobs, pool, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		assets.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("fieldcaptured shutting down")
}
