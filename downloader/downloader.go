package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrTooLarge = errors.New("response exceeds size limit")

type GetOptions struct {
	// Responses larger than this fail with ErrTooLarge. 0 for no
	// limit.
	MaxSize int

	Timeout time.Duration

	// Serve from cache when a copy younger than CacheTTL exists.
	Cache    bool
	CacheTTL time.Duration
}

// Fetches upstream documents, optionally caching them.
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Returned when the upstream answers with anything but 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Gets a document without caching. Downloaders use it on cache
// misses.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if options.MaxSize <= 0 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		return body, nil
	}

	// One byte past the limit tells a full response from an
	// oversized one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(options.MaxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > options.MaxSize {
		return nil, fmt.Errorf("GET %s: %w (%d bytes)", url, ErrTooLarge, options.MaxSize)
	}

	return body, nil
}

// Stable, filesystem and key safe name for a URL.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
