package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateClassification(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		return errors.New("paths.inbox_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ProcessedDir) == "" {
		return errors.New("paths.processed_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.InboxDir == c.Paths.ProcessedDir {
		return errors.New("paths.inbox_dir and paths.processed_dir must differ")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.poll_interval":        c.Pipeline.PollInterval,
		"pipeline.error_retry_interval": c.Pipeline.ErrorRetryInterval,
		"pipeline.inbox_scan_interval":  c.Pipeline.InboxScanInterval,
		"pipeline.max_attempts":         c.Pipeline.MaxAttempts,
		"pipeline.retry_backoff_millis": c.Pipeline.RetryBackoffMillis,
		"pipeline.stage_timeout":        c.Pipeline.StageTimeout,
		"pipeline.reclaim_after":        c.Pipeline.ReclaimAfter,
	}); err != nil {
		return err
	}
	if c.Pipeline.ReclaimAfter <= c.Pipeline.StageTimeout {
		return errors.New("pipeline.reclaim_after must be greater than pipeline.stage_timeout")
	}
	return nil
}

func (c *Config) validateOCR() error {
	switch c.OCR.Engine {
	case "fitz", "stub":
	default:
		return fmt.Errorf("ocr.engine: unsupported value %q (expected fitz or stub)", c.OCR.Engine)
	}
	if c.OCR.TimeoutSeconds <= 0 {
		return errors.New("ocr.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateClassification() error {
	if strings.TrimSpace(c.Classification.DefaultCategory) == "" {
		return errors.New("classification.default_category must be set")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
