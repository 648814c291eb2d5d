// Package registry fetches external package sources by name and version
// from a CDN-style endpoint. Results are cached process-wide; a fetch
// that outlives its timeout becomes a ResolutionTimeout diagnostic
// upstream, never a hang.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"previewkit/internal/logging"
)

// ErrNotFound means the registry has no such package or version.
var ErrNotFound = errors.New("registry: package not found")

// ErrTimeout means the fetch exceeded the configured timeout.
var ErrTimeout = errors.New("registry: resolution timed out")

// DefaultVersion is used when no manifest pins a package.
const DefaultVersion = "latest"

// Client fetches and caches package sources. Safe for concurrent use;
// the cache is insert-if-absent and entries are immutable.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	cache   *lru.Cache[string, string]

	// bodyLimit guards against a misbehaving registry response.
	bodyLimit int64
}

// NewClient builds a registry client. cacheSize bounds the package
// cache; timeout bounds each fetch.
func NewClient(baseURL string, timeout time.Duration, cacheSize int) (*Client, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("registry cache: %w", err)
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout},
		cache:     cache,
		bodyLimit: 8 << 20,
	}, nil
}

// Key is the cache key for a package version.
func Key(name, version string) string {
	return name + "@" + version
}

// Fetch returns the JavaScript source of name@version. Access tokens
// are deliberately absent from this path: registry requests carry no
// caller credentials.
func (c *Client) Fetch(ctx context.Context, name, version string) (string, error) {
	if version == "" {
		version = DefaultVersion
	}
	key := Key(name, version)
	if src, ok := c.cache.Get(key); ok {
		return src, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + "/" + url.PathEscape(name) + "@" + url.PathEscape(version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("registry request: %w", err)
	}
	req.Header.Set("Accept", "application/javascript, text/javascript, */*")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w: %s after %s", ErrTimeout, key, c.timeout)
		}
		return "", fmt.Errorf("registry fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("registry fetch %s: unexpected status %d", key, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.bodyLimit))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w: %s after %s", ErrTimeout, key, c.timeout)
		}
		return "", fmt.Errorf("registry read %s: %w", key, err)
	}

	src := string(body)
	// Insert-if-absent: a concurrent fetch of the same key may have
	// landed first; either copy is equally valid.
	c.cache.ContainsOrAdd(key, src)
	logging.L(logging.CategoryRegistry).Debug("fetched package",
		zap.String("package", key),
		zap.Int("bytes", len(src)),
		zap.Duration("took", time.Since(start)))
	return src, nil
}

// CacheLen reports the number of cached packages.
func (c *Client) CacheLen() int { return c.cache.Len() }

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
