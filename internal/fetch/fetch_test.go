package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/conference-icp-scout/internal/fetch"
)

func TestStaticClientFetch(t *testing.T) {
	var gotUA atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/expo", http.StatusFound)
	})
	mux.HandleFunc("/expo", func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		_, _ = w.Write([]byte(`<html><body><img alt="Acme Corp"></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := fetch.NewStaticClient(fetch.StaticConfig{})
	require.NoError(t, err)

	p, err := c.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Contains(t, p.HTML, "Acme Corp")
	assert.Equal(t, srv.URL+"/expo", p.FinalURL)
	assert.Equal(t, fetch.DefaultUserAgent, gotUA.Load())
}

func TestStaticClientNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied\nAuthorization: Bearer abc.def"))
	}))
	t.Cleanup(srv.Close)

	c, err := fetch.NewStaticClient(fetch.StaticConfig{})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), srv.URL)
	var he *fetch.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusForbidden, he.StatusCode)
	assert.NotContains(t, he.Error(), "abc.def")
	assert.NotContains(t, he.Snippet, "\n")
}

func TestStaticClientBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	t.Cleanup(srv.Close)

	c, err := fetch.NewStaticClient(fetch.StaticConfig{MaxBytes: 16})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, fetch.ErrBodyTooLarge)
}

func TestStaticClientCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(srv.Close)

	t.Run("enabled", func(t *testing.T) {
		hits.Store(0)
		c, err := fetch.NewStaticClient(fetch.StaticConfig{})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err := c.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("disabled", func(t *testing.T) {
		hits.Store(0)
		c, err := fetch.NewStaticClient(fetch.StaticConfig{CacheSize: -1})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err := c.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(3), hits.Load())
	})
}

func TestStaticClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	c, err := fetch.NewStaticClient(fetch.StaticConfig{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestChromeRendererMissingBrowser(t *testing.T) {
	r := fetch.NewChromeRenderer(fetch.RenderConfig{
		ExecPath: "/nonexistent/chrome",
		Timeout:  2 * time.Second,
	})
	_, err := r.Render(context.Background(), "http://example.invalid/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render http://example.invalid/")
}
