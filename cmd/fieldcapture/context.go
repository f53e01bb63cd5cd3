package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"fieldcapture/internal/config"
	"fieldcapture/internal/localqueue"
	"fieldcapture/internal/logging"
	"fieldcapture/internal/syncer"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	queueOnce sync.Once
	queue     localqueue.Queue
	queueErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// configPath is the explicit --config value, empty when the default
// lookup should apply.
func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// cliLogger writes warnings and worse to stderr so queue degradation and
// sync failures stay visible without polluting command output.
func (c *commandContext) cliLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: os.Stderr})
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// ensureQueue opens the local queue once per invocation. Open degrades to
// an in-memory queue when storage is unusable; callers check Durable.
func (c *commandContext) ensureQueue() (localqueue.Queue, error) {
	c.queueOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.queueErr = err
			return
		}
		c.queue = localqueue.Open(cfg.QueueDBPath(), c.cliLogger())
	})
	return c.queue, c.queueErr
}

// outboxDir is where capture blobs wait for sync. Files are copied in at
// enqueue time so the original can move or vanish before the drain runs.
func (c *commandContext) outboxDir() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cfg.Paths.DataDir, "outbox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (c *commandContext) newCoordinator() (*syncer.Coordinator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	queue, err := c.ensureQueue()
	if err != nil {
		return nil, err
	}
	submitter := syncer.NewHTTPSubmitter(cfg.Client)
	timeout := time.Duration(cfg.Sync.SubmitTimeout) * time.Second
	return syncer.NewCoordinator(queue, submitter, timeout, c.cliLogger()), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
