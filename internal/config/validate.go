package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validCategories = map[string]struct{}{
	"authors":  {},
	"editions": {},
	"works":    {},
}

// Validate checks semantic constraints after normalization.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateConvert(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	parsed, err := url.Parse(c.Source.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("source.base_url: %q is not an absolute URL", c.Source.BaseURL)
	}
	for _, category := range c.Source.Categories {
		if _, ok := validCategories[category]; !ok {
			return fmt.Errorf("source.categories: unknown category %q (valid: authors, editions, works)", category)
		}
	}
	return nil
}

func (c *Config) validateConvert() error {
	if c.Convert.BatchRows <= 0 {
		return fmt.Errorf("convert.batch_rows: must be positive, got %d", c.Convert.BatchRows)
	}
	if c.Convert.BatchMiB <= 0 {
		return fmt.Errorf("convert.batch_mib: must be positive, got %d", c.Convert.BatchMiB)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// ValidateDataset checks the dataset store settings. It is called only by
// operations that publish, so fetch-only invocations work without credentials.
func (c *Config) ValidateDataset() error {
	if strings.TrimSpace(c.Dataset.Endpoint) == "" {
		return fmt.Errorf("dataset.endpoint: required for publishing")
	}
	if strings.TrimSpace(c.Dataset.AccessKey) == "" || strings.TrimSpace(c.Dataset.SecretKey) == "" {
		return fmt.Errorf("dataset credentials: set dataset.access_key/secret_key or OLSYNC_ACCESS_KEY/OLSYNC_SECRET_KEY")
	}
	return nil
}
