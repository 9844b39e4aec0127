package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeFetch()
	c.normalizeConvert()
	c.normalizeDataset()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ManifestPath) == "" {
		c.Paths.ManifestPath = defaultManifestPath
	}
	if c.Paths.ManifestPath, err = expandPath(c.Paths.ManifestPath); err != nil {
		return fmt.Errorf("paths.manifest_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(c.Source.BaseURL), "/")
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = defaultBaseURL
	}
	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = defaultRequestTimeout
	}
	categories := make([]string, 0, len(c.Source.Categories))
	for _, category := range c.Source.Categories {
		category = strings.ToLower(strings.TrimSpace(category))
		if category != "" {
			categories = append(categories, category)
		}
	}
	c.Source.Categories = categories
}

func (c *Config) normalizeFetch() {
	if c.Fetch.MaxAttempts <= 0 {
		c.Fetch.MaxAttempts = defaultFetchAttempts
	}
	if c.Fetch.RetryBaseSeconds <= 0 {
		c.Fetch.RetryBaseSeconds = defaultRetryBaseSeconds
	}
	if c.Fetch.RetryMaxSeconds <= 0 {
		c.Fetch.RetryMaxSeconds = defaultRetryMaxSeconds
	}
}

func (c *Config) normalizeConvert() {
	if c.Convert.BatchRows <= 0 {
		c.Convert.BatchRows = defaultBatchRows
	}
	if c.Convert.BatchMiB <= 0 {
		c.Convert.BatchMiB = defaultBatchMiB
	}
	if c.Convert.QueueDepth <= 0 {
		c.Convert.QueueDepth = defaultQueueDepth
	}
}

func (c *Config) normalizeDataset() {
	c.Dataset.Endpoint = strings.TrimSpace(c.Dataset.Endpoint)
	c.Dataset.Bucket = strings.TrimSpace(c.Dataset.Bucket)
	c.Dataset.Prefix = strings.Trim(strings.TrimSpace(c.Dataset.Prefix), "/")
	if c.Dataset.Bucket == "" {
		c.Dataset.Bucket = defaultDatasetBucket
	}
	if c.Dataset.MaxAttempts <= 0 {
		c.Dataset.MaxAttempts = defaultDatasetAttempts
	}
	if strings.TrimSpace(c.Dataset.AccessKey) == "" {
		c.Dataset.AccessKey = os.Getenv("OLSYNC_ACCESS_KEY")
	}
	if strings.TrimSpace(c.Dataset.SecretKey) == "" {
		c.Dataset.SecretKey = os.Getenv("OLSYNC_SECRET_KEY")
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
