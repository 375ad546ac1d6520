package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	defaultRenderTimeout = 45 * time.Second
	defaultSettleDelay   = time.Second
	defaultIdleTimeout   = 15 * time.Second
)

// RenderConfig configures a ChromeRenderer. Zero values pick defaults.
type RenderConfig struct {
	Timeout     time.Duration
	SettleDelay time.Duration
	// IdleTimeout bounds the wait for the network to go idle after
	// navigation. The page is captured anyway once it elapses.
	IdleTimeout time.Duration
	UserAgent   string
	// ExecPath points at a Chrome/Chromium binary; empty searches PATH.
	ExecPath string
}

// ChromeRenderer loads a page in headless Chrome and returns the DOM after
// scripts ran. Each call starts and stops its own browser.
type ChromeRenderer struct {
	cfg RenderConfig
}

func NewChromeRenderer(cfg RenderConfig) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRenderTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &ChromeRenderer{cfg: cfg}
}

// Render navigates to url, waits for the network to go idle plus a settle
// delay, then returns the serialized document.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(r.cfg.UserAgent))
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, r.cfg.Timeout)
	defer cancel()

	idle := newIdleWaiter()
	chromedp.ListenTarget(runCtx, idle.observe)

	var html, location string
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return page.SetLifecycleEventsEnabled(true).Do(ctx)
		}),
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return idle.wait(ctx, r.cfg.IdleTimeout)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", url, err)
	}
	if location == "" {
		location = url
	}
	return Page{HTML: html, FinalURL: location}, nil
}

// idleWaiter watches page lifecycle events and fires once the navigation that
// follows its first "init" event reports "networkIdle".
type idleWaiter struct {
	mu    sync.Mutex
	armed bool
	once  sync.Once
	done  chan struct{}
}

func newIdleWaiter() *idleWaiter {
	return &idleWaiter{done: make(chan struct{})}
}

func (w *idleWaiter) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch e.Name {
	case "init":
		w.armed = true
	case "networkIdle":
		if w.armed {
			w.once.Do(func() { close(w.done) })
		}
	}
}

// wait blocks until the network went idle or limit elapsed. Only ctx
// cancellation is an error.
func (w *idleWaiter) wait(ctx context.Context, limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-w.done:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
