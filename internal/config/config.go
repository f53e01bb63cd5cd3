package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by the daemon and the CLI.
type Paths struct {
	DataDir string `toml:"data_dir"`
	BlobDir string `toml:"blob_dir"`
	LogDir  string `toml:"log_dir"`
}

// Server contains configuration for the ingest daemon.
type Server struct {
	Bind               string `toml:"bind"`
	APIToken           string `toml:"api_token"`
	DispatchWorkers    int    `toml:"dispatch_workers"`
	DispatchQueueDepth int    `toml:"dispatch_queue_depth"`
	ThumbnailMaxPx     int    `toml:"thumbnail_max_px"`
	PreviewMaxPx       int    `toml:"preview_max_px"`
	MaxUploadBytes     int64  `toml:"max_upload_bytes"`
}

// Client contains configuration for the capture CLI.
type Client struct {
	ServerURL string `toml:"server_url"`
	APIToken  string `toml:"api_token"`
}

// Sync contains configuration for the drain loop timing.
type Sync struct {
	// SubmitTimeout bounds each per-record network submission, in seconds.
	// Values outside 10-30 are clamped during normalization.
	SubmitTimeout     int `toml:"submit_timeout"`
	ReconnectInterval int `toml:"reconnect_interval"`
	WakeDelay         int `toml:"wake_delay"`
}

// Scorer contains configuration for the engagement score callout.
type Scorer struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fieldcapture.
//
// Configuration sections by subsystem:
//   - Paths: data, blob, and log directories
//   - Server: ingest API bind address, auth token, and dispatcher sizing
//   - Client: server endpoint for the capture CLI
//   - Sync: drain loop timeouts and reconnect polling
//   - Scorer: engagement score service endpoint
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Server  Server  `toml:"server"`
	Client  Client  `toml:"client"`
	Sync    Sync    `toml:"sync"`
	Scorer  Scorer  `toml:"scorer"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fieldcapture/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fieldcapture.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.BlobDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	if c.Sync.SubmitTimeout < minSubmitTimeout {
		c.Sync.SubmitTimeout = minSubmitTimeout
	}
	if c.Sync.SubmitTimeout > maxSubmitTimeout {
		c.Sync.SubmitTimeout = maxSubmitTimeout
	}
	if c.Sync.ReconnectInterval <= 0 {
		c.Sync.ReconnectInterval = defaultReconnectInterval
	}
	if c.Sync.WakeDelay <= 0 {
		c.Sync.WakeDelay = defaultWakeDelay
	}

	if c.Server.DispatchWorkers <= 0 {
		c.Server.DispatchWorkers = defaultDispatchWorkers
	}
	if c.Server.DispatchQueueDepth <= 0 {
		c.Server.DispatchQueueDepth = defaultDispatchQueueDepth
	}
	if c.Server.ThumbnailMaxPx <= 0 {
		c.Server.ThumbnailMaxPx = defaultThumbnailMaxPx
	}
	if c.Server.PreviewMaxPx <= 0 {
		c.Server.PreviewMaxPx = defaultPreviewMaxPx
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Scorer.RequestTimeout <= 0 {
		c.Scorer.RequestTimeout = defaultScorerTimeout
	}
	c.Client.ServerURL = strings.TrimRight(strings.TrimSpace(c.Client.ServerURL), "/")
	return nil
}

// QueueDBPath returns the client-side pending capture database path.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// ServerDBPath returns the server-side metadata database path.
func (c *Config) ServerDBPath() string {
	return filepath.Join(c.Paths.DataDir, "fieldcapture.db")
}
