package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/capture"
	"fieldcapture/internal/logging"
)

// errUnsupported marks file types the pool has no handler for. The asset
// stays in processing rather than failing, so a later build with the
// handler can pick it up via retry.
var errUnsupported = errors.New("unsupported file type")

// Task is one asset handed to the worker pool.
type Task struct {
	AssetID  string
	FileType capture.FileType
}

// AssetStore is the slice of the asset store the workers need.
type AssetStore interface {
	GetByID(ctx context.Context, id string) (*asset.Asset, error)
	MarkReady(ctx context.Context, id string, derived asset.Derivatives) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// handler produces the derivatives for one asset.
type handler func(ctx context.Context, media *asset.Asset) (asset.Derivatives, error)

// Options tunes the worker pool.
type Options struct {
	Workers        int
	QueueDepth     int
	ThumbnailMaxPx int
	PreviewMaxPx   int
}

// Dispatcher runs a fixed pool of workers over a bounded task queue.
// Dispatch never blocks the caller; when the queue is full the task is
// dropped with a log line and the asset remains in processing until a
// retry re-dispatches it.
type Dispatcher struct {
	assets   AssetStore
	tasks    chan Task
	handlers map[capture.FileType]handler
	logger   *slog.Logger
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds the dispatcher. blobs provides byte access for the image and
// document handlers.
func New(assets AssetStore, blobs BlobStore, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 1 {
		opts.QueueDepth = 1
	}
	if opts.ThumbnailMaxPx < 1 {
		opts.ThumbnailMaxPx = 320
	}
	if opts.PreviewMaxPx < 1 {
		opts.PreviewMaxPx = 1280
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		assets:  assets,
		tasks:   make(chan Task, opts.QueueDepth),
		logger:  logging.NewComponentLogger(logger, "dispatch"),
		workers: opts.Workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	images := &imageProcessor{blobs: blobs, thumbnailMaxPx: opts.ThumbnailMaxPx, previewMaxPx: opts.PreviewMaxPx}
	documents := &documentProcessor{blobs: blobs}
	d.handlers = map[capture.FileType]handler{
		capture.FileImage:    images.process,
		capture.FilePDF:      documents.process,
		capture.FileDocument: documents.process,
		capture.FileVideo:    unsupported,
		capture.FileAudio:    unsupported,
	}
	return d
}

// Start launches the worker goroutines. Safe to call once.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
	})
}

// Stop drains nothing; in-flight tasks finish, queued tasks are abandoned
// and their assets stay in processing for a later retry.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
	})
	d.wg.Wait()
}

// Dispatch enqueues one asset for processing without blocking.
func (d *Dispatcher) Dispatch(assetID string, fileType capture.FileType) {
	select {
	case d.tasks <- Task{AssetID: assetID, FileType: fileType}:
	default:
		d.logger.Warn("processing queue full; asset remains processing until retried",
			logging.String(logging.FieldAssetID, assetID))
	}
}

// QueueDepth reports how many tasks are waiting.
func (d *Dispatcher) QueueDepth() int {
	return len(d.tasks)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case task := <-d.tasks:
			d.process(task)
		}
	}
}

func (d *Dispatcher) process(task Task) {
	logger := d.logger.With(logging.String(logging.FieldAssetID, task.AssetID))

	media, err := d.assets.GetByID(d.ctx, task.AssetID)
	if err != nil {
		logger.Warn("asset vanished before processing", logging.Error(err))
		return
	}
	if media.Status != asset.StatusProcessing {
		logger.Info("skipping asset no longer in processing",
			logging.String("status", string(media.Status)))
		return
	}

	fn, ok := d.handlers[task.FileType]
	if !ok {
		fn = unsupported
	}

	derived, err := fn(d.ctx, media)
	if errors.Is(err, errUnsupported) {
		logger.Info("no processor for file type; asset left in processing",
			logging.String("file_type", string(task.FileType)))
		return
	}
	if err != nil {
		logger.Warn("processing failed", logging.Error(err))
		if markErr := d.assets.MarkFailed(d.ctx, task.AssetID, err.Error()); markErr != nil {
			logger.Warn("failed status write lost the guard race", logging.Error(markErr))
		}
		return
	}

	if err := d.assets.MarkReady(d.ctx, task.AssetID, derived); err != nil {
		logger.Warn("ready status write lost the guard race", logging.Error(err))
		return
	}
	logger.Info("asset processed",
		logging.String("file_type", string(task.FileType)),
		logging.Int("width", derived.Width),
		logging.Int("height", derived.Height))
}

func unsupported(context.Context, *asset.Asset) (asset.Derivatives, error) {
	return asset.Derivatives{}, errUnsupported
}
