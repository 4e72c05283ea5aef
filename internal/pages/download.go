package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
)

// Downloader fetches page images referenced by URL, retrying with exponential backoff
type Downloader struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxBytes       int64

	client *http.Client
	logger *logging.Logger
}

// NewDownloader creates a downloader with the standard retry policy
func NewDownloader(logger *logging.Logger) *Downloader {
	return &Downloader{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     32 * time.Second,
		MaxBytes:       100 * 1024 * 1024,
		client:         &http.Client{Timeout: 5 * time.Minute},
		logger:         logging.OrDefault(logger, "PageDownloader"),
	}
}

// Fetch downloads one page image
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	backoff := d.InitialBackoff

	for attempt := 1; attempt <= d.MaxRetries; attempt++ {
		data, err := d.fetchOnce(ctx, url)
		if err == nil {
			d.logger.Debug("Page downloaded", "url", url, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		lastErr = err
		d.logger.Warn("Page download failed", "url", url, "attempt", attempt, "error", err)

		if attempt == d.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("download cancelled during retry backoff: %w", ctx.Err())
		}
		backoff *= 2
		if backoff > d.MaxBackoff {
			backoff = d.MaxBackoff
		}
	}

	return nil, fmt.Errorf("failed to download %s after %d attempts: %w", url, d.MaxRetries, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if d.MaxBytes > 0 && resp.ContentLength > d.MaxBytes {
		return nil, fmt.Errorf("page size exceeds maximum: %d > %d bytes", resp.ContentLength, d.MaxBytes)
	}

	limit := d.MaxBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
