// CLAUDE:SUMMARY Headless Chrome renderer on rod with stealth pages, lazily launched and reused.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// RodRenderer renders JS-heavy pages in a headless Chrome driven by rod.
// The browser launches lazily on first use and is reused across pages.
type RodRenderer struct {
	controlURL string // pre-existing browser websocket; empty launches one
	timeout    time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodRenderer creates a renderer. controlURL may point at an external
// Chrome; empty means launch a local headless instance on demand.
func NewRodRenderer(controlURL string, timeout time.Duration, logger *slog.Logger) *RodRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RodRenderer{controlURL: controlURL, timeout: timeout, logger: logger}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.controlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	r.browser = browser
	return browser, nil
}

// Render navigates to url and returns the DOM serialized after load.
func (r *RodRenderer) Render(ctx context.Context, url string) (string, error) {
	browser, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("render: page: %w", err)
	}
	defer page.Close()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("render: navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("render: wait load: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("render: serialize: %w", err)
	}
	return html, nil
}

// Close shuts the browser down if one was launched.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}
