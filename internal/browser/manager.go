// File: internal/browser/manager.go

// Package browser owns the headless Chrome lifecycle: one exec allocator per
// process, one independent browser instance per automation run.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// Manager handles the lifecycle of the headless browser processes backing
// automation runs.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx manages browser process allocation. Every page context is
	// derived from this, so cancelling it terminates every browser.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// wg tracks live pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager initializes the allocator and verifies a browser can actually
// launch, so misconfiguration surfaces at startup instead of mid-run.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchAllocator(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchAllocator(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	opts := allocatorOptions(m.cfg.Browser)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	// Launch a throwaway instance to confirm the binary starts and responds.
	testCtx, cancelTest := context.WithTimeout(allocCtx, m.cfg.Browser.LaunchTimeout)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// allocatorOptions translates the browser config into chromedp launch flags.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		// Some form hosts refuse input from pages that advertise automation.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	// Add custom arguments from the config file.
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")

		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers (e.g. Docker on Linux).
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// AcquirePage launches a fresh, independent browser instance and hands back
// its page handle. The caller owns the page until Close.
func (m *Manager) AcquirePage(ctx context.Context) (*Page, error) {
	logger := m.logger.Named("page")

	tabCtx, tabCancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// Materialize the browser process now so launch failures are reported
	// here rather than on the first input.
	launchCtx, cancelLaunch := context.WithTimeout(tabCtx, m.cfg.Browser.LaunchTimeout)
	defer cancelLaunch()
	if err := chromedp.Run(launchCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start browser instance: %w", err)
	}

	m.wg.Add(1)
	var releaseOnce sync.Once
	page := &Page{
		ctx:    tabCtx,
		cancel: tabCancel,
		release: func() {
			releaseOnce.Do(m.wg.Done)
		},
		logger: logger,
		cfg:    m.cfg.Browser,
	}

	m.logger.Info("Browser instance acquired.")
	return page, nil
}

// Shutdown waits for active pages to be released, then terminates every
// browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for active pages...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages released.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down browser processes...")
		m.allocatorCancel()
		// Wait for the allocator context to confirm termination.
		<-m.allocatorCtx.Done()
	}
	return nil
}
