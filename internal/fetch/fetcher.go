package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"olsync/internal/dump"
	"olsync/internal/logging"
	"olsync/internal/manifest"
	"olsync/internal/services"
)

const partialSuffix = ".partial"

// RemoteInfo captures what a probe learned about a remote dump file.
type RemoteInfo struct {
	// Signature is the change-detection marker: Last-Modified when present,
	// otherwise ETag. Empty means the remote exposes neither and the source
	// is always treated as stale.
	Signature    string
	Size         int64
	AcceptRanges bool
}

// Result describes a completed download.
type Result struct {
	Path    string
	Bytes   int64
	Resumed bool
}

// Client downloads dump files with retry, resume, and integrity verification.
type Client struct {
	httpClient *http.Client
	policy     services.RetryPolicy
	resume     bool
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithResume toggles range-request resumption of interrupted downloads.
func WithResume(resume bool) Option {
	return func(c *Client) {
		c.resume = resume
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a fetch client using the supplied retry policy.
func NewClient(policy services.RetryPolicy, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		policy:     policy,
		resume:     true,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "fetch")
	return c
}

// NeedsFetch reports whether the remote differs from the manifest entry. A
// missing entry or an empty remote signature always means fetch.
func NeedsFetch(entry manifest.Entry, known bool, info RemoteInfo) bool {
	if !known || info.Signature == "" {
		return true
	}
	return entry.Signature != info.Signature
}

// Probe issues a HEAD request for the descriptor and extracts the remote's
// signature and size.
func (c *Client) Probe(ctx context.Context, desc dump.SourceDescriptor) (RemoteInfo, error) {
	var info RemoteInfo
	err := c.policy.Do(ctx, "probe "+desc.Name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, desc.URL, nil)
		if err != nil {
			return services.Wrap(services.ErrFatal, "fetch", "build probe request", desc.URL, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return services.Wrap(services.ErrTransient, "fetch", "probe", desc.Name, err)
		}
		defer resp.Body.Close()
		if err := classifyStatus("probe", desc.Name, resp.StatusCode); err != nil {
			return err
		}
		info = RemoteInfo{
			Signature:    remoteSignature(resp.Header),
			Size:         resp.ContentLength,
			AcceptRanges: strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
		}
		return nil
	})
	if err != nil {
		return RemoteInfo{}, err
	}
	return info, nil
}

// Fetch downloads the descriptor to destPath. The download is verified
// against info before it is declared successful; a mismatch discards the data
// and surfaces a retryable integrity error.
func (c *Client) Fetch(ctx context.Context, desc dump.SourceDescriptor, info RemoteInfo, destPath string) (Result, error) {
	partial := destPath + partialSuffix
	var result Result

	err := c.policy.Do(ctx, "fetch "+desc.Name, func(ctx context.Context) error {
		return c.fetchOnce(ctx, desc, info, destPath, partial, &result)
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (c *Client) fetchOnce(ctx context.Context, desc dump.SourceDescriptor, info RemoteInfo, destPath, partial string, result *Result) error {
	offset := int64(0)
	if c.resume && info.AcceptRanges {
		if stat, err := os.Stat(partial); err == nil && stat.Size() > 0 && stat.Size() < info.Size {
			offset = stat.Size()
		}
	}
	if offset == 0 {
		os.Remove(partial)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return services.Wrap(services.ErrFatal, "fetch", "build request", desc.URL, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "download", desc.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		result.Resumed = true
	case offset > 0 && resp.StatusCode == http.StatusOK:
		// Server ignored the range request; restart from scratch.
		offset = 0
		result.Resumed = false
	default:
		if err := classifyStatus("download", desc.Name, resp.StatusCode); err != nil {
			return err
		}
	}

	// A signature change mid-run means the remote was republished while we
	// were downloading. The bytes cannot be trusted against the probed
	// signature, so discard them.
	if sig := remoteSignature(resp.Header); info.Signature != "" && sig != "" && sig != info.Signature {
		os.Remove(partial)
		return services.Wrap(services.ErrIntegrity, "fetch", "download", fmt.Sprintf("%s: remote signature changed from %q to %q", desc.Name, info.Signature, sig), nil)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return services.Wrap(services.ErrFatal, "fetch", "open partial file", partial, err)
	}

	copied, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		// Keep the partial file: the next attempt can resume from it.
		return services.Wrap(services.ErrTransient, "fetch", "stream body", desc.Name, copyErr)
	}
	if closeErr != nil {
		return services.Wrap(services.ErrFatal, "fetch", "close partial file", partial, closeErr)
	}

	total := offset + copied
	if info.Size > 0 && total != info.Size {
		os.Remove(partial)
		return services.Wrap(services.ErrIntegrity, "fetch", "verify", fmt.Sprintf("%s: downloaded %d bytes, remote advertised %d", desc.Name, total, info.Size), nil)
	}

	if err := os.Rename(partial, destPath); err != nil {
		return services.Wrap(services.ErrFatal, "fetch", "finalize artifact", destPath, err)
	}

	result.Path = destPath
	result.Bytes = total
	c.logger.Info("dump fetched",
		logging.String(logging.FieldSource, desc.Name),
		logging.Int64("bytes", total),
		logging.Bool("resumed", result.Resumed),
	)
	return nil
}

func remoteSignature(header http.Header) string {
	if lm := strings.TrimSpace(header.Get("Last-Modified")); lm != "" {
		return lm
	}
	return strings.TrimSpace(header.Get("ETag"))
}

func classifyStatus(operation, source string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "fetch", operation, fmt.Sprintf("%s: http %d", source, status), nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrTransient, "fetch", operation, fmt.Sprintf("%s: http %d", source, status), nil)
	default:
		return services.Wrap(services.ErrFatal, "fetch", operation, fmt.Sprintf("%s: http %d", source, status), nil)
	}
}
