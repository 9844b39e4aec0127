package main

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"olsync/internal/config"
	"olsync/internal/fetch"
	"olsync/internal/journal"
	"olsync/internal/logging"
	"olsync/internal/manifest"
	"olsync/internal/pipeline"
	"olsync/internal/publish"
	"olsync/internal/services"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
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

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg)
}

// buildPipeline assembles the run dependencies. The dataset store is only
// constructed when the invocation will actually publish, so fetch-only and
// dry runs work without credentials.
func (c *commandContext) buildPipeline(needPublisher bool) (*pipeline.Pipeline, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, nil, err
	}

	man, err := manifest.Open(cfg.Paths.ManifestPath)
	if err != nil {
		return nil, nil, err
	}

	fetcher := fetch.NewClient(fetchPolicy(cfg),
		fetch.WithResume(cfg.Fetch.Resume),
		fetch.WithHTTPClient(httpClientFor(cfg)),
		fetch.WithLogger(logger),
	)

	var publisher *publish.Publisher
	if needPublisher {
		if err := cfg.ValidateDataset(); err != nil {
			return nil, nil, err
		}
		store, err := publish.NewS3Store(cfg.Dataset)
		if err != nil {
			return nil, nil, err
		}
		publisher = publish.New(store, cfg.Dataset, man, datasetPolicy(cfg), logger)
	}

	jrnl, err := journal.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = jrnl.Close() }

	return pipeline.New(cfg, logger, man, fetcher, publisher, jrnl), cleanup, nil
}

// httpClientFor bounds the time to response headers rather than the whole
// body; dump downloads legitimately run for hours.
func httpClientFor(cfg *config.Config) *http.Client {
	if cfg.Source.RequestTimeout <= 0 {
		return http.DefaultClient
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: time.Duration(cfg.Source.RequestTimeout) * time.Second,
		},
	}
}

func fetchPolicy(cfg *config.Config) services.RetryPolicy {
	policy := services.DefaultRetryPolicy()
	if cfg.Fetch.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Fetch.MaxAttempts
	}
	if cfg.Fetch.RetryBaseSeconds > 0 {
		policy.BaseDelay = time.Duration(cfg.Fetch.RetryBaseSeconds) * time.Second
	}
	if cfg.Fetch.RetryMaxSeconds > 0 {
		policy.MaxDelay = time.Duration(cfg.Fetch.RetryMaxSeconds) * time.Second
	}
	return policy
}

func datasetPolicy(cfg *config.Config) services.RetryPolicy {
	policy := services.DefaultRetryPolicy()
	if cfg.Dataset.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Dataset.MaxAttempts
	}
	return policy
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
