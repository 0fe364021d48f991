// Package gateway moves media in and out of the worker: scene assets are
// fetched over HTTP and the final artifact is pushed to the object store.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/amankumarsingh77/render-worker/pkg/utils"
)

const retryStep = 500 * time.Millisecond

const dataAudioPrefix = "data:audio/"
const base64Marker = "base64,"

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download failed %d: %s", e.StatusCode, e.URL)
}

// Retryable reports whether a later attempt could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	retries int
	clock   utils.Clock
	logger  logger.Logger
}

func NewFetcher(client *http.Client, timeout time.Duration, retries int, clock utils.Clock, log logger.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{client: client, timeout: timeout, retries: retries, clock: clock, logger: log}
}

// IsRemoteURL reports whether s is an http or https URL.
func IsRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsDataAudioURL reports whether s is an inline base64 audio payload.
func IsDataAudioURL(s string) bool {
	return strings.HasPrefix(s, dataAudioPrefix) && strings.Contains(s, base64Marker)
}

// Download streams url into dest, retrying transient failures with a linear
// backoff. Nothing is left at dest when every attempt fails.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				_ = os.Remove(dest)
				return ctx.Err()
			case <-f.clock.After(time.Duration(attempt) * retryStep):
			}
		}
		lastErr = f.fetchOnce(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && !statusErr.Retryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < f.retries {
			f.logger.Warnf("download attempt %d for %s failed: %v", attempt+1, url, lastErr)
		}
	}
	_ = os.Remove(dest)
	return lastErr
}

// fetchOnce bounds the wait for response headers by the fetch timeout. The
// body then streams under ctx alone so large assets are not cut off.
func (f *Fetcher) fetchOnce(ctx context.Context, url, dest string) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := time.AfterFunc(f.timeout, cancel)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		timer.Stop()
		return fmt.Errorf("invalid download url %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	headersInTime := timer.Stop()
	if err != nil {
		if !headersInTime && ctx.Err() == nil {
			return fmt.Errorf("download %s: no response within %s: %w", url, f.timeout, context.DeadlineExceeded)
		}
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if !headersInTime {
		return fmt.Errorf("download %s: no response within %s: %w", url, f.timeout, context.DeadlineExceeded)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return out.Close()
}

// WriteDataURL decodes an inline base64 payload into dest.
func WriteDataURL(dataURL, dest string) error {
	encoded := dataURL
	if idx := strings.Index(dataURL, base64Marker); idx >= 0 {
		encoded = dataURL[idx+len(base64Marker):]
	}
	// Padding is optional: producers send both padded and raw base64.
	encoded = strings.TrimRight(strings.TrimSpace(encoded), "=")
	decoded, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid base64 audio: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	if err := os.WriteFile(dest, decoded, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
