// Package fetch loads conference pages, either as served (StaticClient) or
// after the browser has executed their scripts (ChromeRenderer).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultUserAgent is sent on static fetches; some conference sites refuse
// obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121 Safari/537.36"

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxBytes  = 10 << 20
	defaultCacheSize = 512
)

// ErrBodyTooLarge is returned when a page exceeds the configured size cap.
var ErrBodyTooLarge = errors.New("response body too large")

// Page is a fetched document and the URL it was finally served from.
type Page struct {
	HTML     string
	FinalURL string
}

// StaticConfig configures a StaticClient. Zero values pick defaults.
type StaticConfig struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	// CacheSize bounds the per-client page cache. Negative disables caching.
	CacheSize int
	// HTTPClient overrides the underlying client; its Timeout is left alone.
	HTTPClient *http.Client
}

// StaticClient fetches raw HTML over HTTP, following redirects.
type StaticClient struct {
	hc        *http.Client
	userAgent string
	maxBytes  int64
	cache     *lru.Cache[string, Page]
}

func NewStaticClient(cfg StaticConfig) (*StaticClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	c := &StaticClient{hc: hc, userAgent: cfg.UserAgent, maxBytes: cfg.MaxBytes}
	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = defaultCacheSize
		}
		cache, err := lru.New[string, Page](size)
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Fetch GETs url and returns its body. Non-2xx responses are *HTTPError.
// Successful pages are cached for the life of the client.
func (c *StaticClient) Fetch(ctx context.Context, url string) (Page, error) {
	if c.cache != nil {
		if p, ok := c.cache.Get(url); ok {
			return p, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, newHTTPError(url, resp, body)
	}
	if int64(len(body)) > c.maxBytes {
		return Page{}, fmt.Errorf("fetch %s: %w (limit %d bytes)", url, ErrBodyTooLarge, c.maxBytes)
	}

	p := Page{HTML: string(body), FinalURL: resp.Request.URL.String()}
	if c.cache != nil {
		c.cache.Add(url, p)
	}
	return p, nil
}
