package config

const (
	defaultWorkDir          = "~/.local/share/olsync/work"
	defaultLogDir           = "~/.local/share/olsync/logs"
	defaultManifestPath     = "~/.local/share/olsync/ol_sync_manifest.json"
	defaultBaseURL          = "https://openlibrary.org/data"
	defaultRequestTimeout   = 30
	defaultFetchAttempts    = 4
	defaultRetryBaseSeconds = 2
	defaultRetryMaxSeconds  = 60
	defaultBatchRows        = 100000
	defaultBatchMiB         = 256
	defaultQueueDepth       = 512
	defaultDatasetBucket    = "openlibrary"
	defaultDatasetAttempts  = 3
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:      defaultWorkDir,
			LogDir:       defaultLogDir,
			ManifestPath: defaultManifestPath,
		},
		Source: Source{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Fetch: Fetch{
			MaxAttempts:      defaultFetchAttempts,
			RetryBaseSeconds: defaultRetryBaseSeconds,
			RetryMaxSeconds:  defaultRetryMaxSeconds,
			Resume:           true,
		},
		Convert: Convert{
			BatchRows:  defaultBatchRows,
			BatchMiB:   defaultBatchMiB,
			QueueDepth: defaultQueueDepth,
		},
		Dataset: Dataset{
			Bucket:         defaultDatasetBucket,
			UseSSL:         true,
			MaxAttempts:    defaultDatasetAttempts,
			UploadManifest: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
