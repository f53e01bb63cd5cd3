package config

const (
	defaultDataDir            = "~/.local/share/fieldcapture"
	defaultBlobDir            = "~/.local/share/fieldcapture/blobs"
	defaultLogDir             = "~/.local/share/fieldcapture/logs"
	defaultBind               = "127.0.0.1:7519"
	defaultServerURL          = "http://127.0.0.1:7519"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultDispatchWorkers    = 2
	defaultDispatchQueueDepth = 64
	defaultThumbnailMaxPx     = 320
	defaultPreviewMaxPx       = 1280
	defaultMaxUploadBytes     = 256 << 20
	defaultSubmitTimeout      = 20
	minSubmitTimeout          = 10
	maxSubmitTimeout          = 30
	defaultReconnectInterval  = 15
	defaultWakeDelay          = 60
	defaultScorerTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			BlobDir: defaultBlobDir,
			LogDir:  defaultLogDir,
		},
		Server: Server{
			Bind:               defaultBind,
			DispatchWorkers:    defaultDispatchWorkers,
			DispatchQueueDepth: defaultDispatchQueueDepth,
			ThumbnailMaxPx:     defaultThumbnailMaxPx,
			PreviewMaxPx:       defaultPreviewMaxPx,
			MaxUploadBytes:     defaultMaxUploadBytes,
		},
		Client: Client{
			ServerURL: defaultServerURL,
		},
		Sync: Sync{
			SubmitTimeout:     defaultSubmitTimeout,
			ReconnectInterval: defaultReconnectInterval,
			WakeDelay:         defaultWakeDelay,
		},
		Scorer: Scorer{
			RequestTimeout: defaultScorerTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
