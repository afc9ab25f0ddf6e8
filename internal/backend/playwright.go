package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

var (
	// Playwright instance (singleton)
	pwOnce     sync.Once
	pwInstance *playwright.Playwright
	pwErr      error
)

// getPlaywright returns the singleton Playwright instance.
func getPlaywright() (*playwright.Playwright, error) {
	pwOnce.Do(func() {
		// Install browsers if needed
		if err := playwright.Install(); err != nil {
			pwErr = fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}

		pw, err := playwright.Run()
		if err != nil {
			pwErr = fmt.Errorf("failed to start playwright: %w", err)
			return
		}
		pwInstance = pw
	})

	return pwInstance, pwErr
}

type playwrightBrowser struct {
	mu      sync.Mutex
	browser playwright.Browser
	context playwright.BrowserContext
	opts    LaunchOptions
	closed  bool
}

// Launch starts a Chromium process with one browser context and returns the
// engine handle. Each session gets its own Launch; processes are never
// shared.
func Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	pw, err := getPlaywright()
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ExecPath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecPath)
	}
	if len(opts.Args) > 0 {
		launchOpts.Args = opts.Args
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		}
	}

	browserCtx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if opts.DefaultTimeout > 0 {
		browserCtx.SetDefaultTimeout(float64(opts.DefaultTimeout.Milliseconds()))
	}

	return &playwrightBrowser{
		browser: browser,
		context: browserCtx,
		opts:    opts,
	}, nil
}

func (b *playwrightBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("browser is closed")
	}

	pwPage, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return newPlaywrightPage(pwPage, b.opts), nil
}

func (b *playwrightBrowser) Version() string {
	return b.browser.Version()
}

func (b *playwrightBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	return b.browser.Close()
}
