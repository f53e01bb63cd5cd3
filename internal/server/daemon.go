package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/blobstore"
	"fieldcapture/internal/config"
	"fieldcapture/internal/dispatch"
	"fieldcapture/internal/ingest"
	"fieldcapture/internal/logging"
)

// Daemon coordinates the ingest API, the processing pool and the shared
// stores, and enforces single-instance execution via a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	assets *asset.Store
	svc    *ingest.Service
	blobs  *blobstore.Store
	pool   *dispatch.Dispatcher
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, assets *asset.Store, svc *ingest.Service, blobs *blobstore.Store, pool *dispatch.Dispatcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || assets == nil || svc == nil || blobs == nil || pool == nil {
		return nil, errors.New("daemon requires config, stores, ingest service and dispatcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "fieldcaptured.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		assets:   assets,
		svc:      svc,
		blobs:    blobs,
		pool:     pool,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the worker pool and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fieldcapture daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.pool.Start()
	if err := d.api.start(d.ctx); err != nil {
		d.pool.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("fieldcapture daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API, stops the worker pool and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("fieldcapture daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.assets != nil {
		return d.assets.Close()
	}
	return nil
}

// Addr reports the bound API address, empty until Start succeeds.
func (d *Daemon) Addr() string {
	return d.api.addr()
}
