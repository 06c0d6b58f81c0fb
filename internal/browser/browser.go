package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser owns one persistent Chromium profile and the single page all
// fetches run on. The persistent profile keeps marketplace cookies and
// consent state across restarts.
type Browser struct {
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	logger  *slog.Logger
}

type Options struct {
	Headless             bool
	ProfileDir           string
	NavTimeout           time.Duration
	UserAgent            string
	Locale               string
	TimezoneID           string
	ViewportWidth        int
	ViewportHeight       int
	BlockedResourceTypes []string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:             true,
		ProfileDir:           ".listing-checker-profile",
		NavTimeout:           30 * time.Second,
		UserAgent:            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		Locale:               "ja-JP",
		TimezoneID:           "Asia/Tokyo",
		ViewportWidth:        1280,
		ViewportHeight:       900,
		BlockedResourceTypes: []string{"image", "font", "media"},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	context, err := pw.Chromium.LaunchPersistentContext(opts.ProfileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:   &opts.Headless,
		UserAgent:  &opts.UserAgent,
		Locale:     &opts.Locale,
		TimezoneId: &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultNavigationTimeout(float64(opts.NavTimeout.Milliseconds()))
	page.SetDefaultTimeout(float64(opts.NavTimeout.Milliseconds()))

	b := &Browser{
		pw:      pw,
		context: context,
		page:    page,
		logger:  slog.Default().With("component", "browser"),
	}

	if len(opts.BlockedResourceTypes) > 0 {
		blocked := make(map[string]bool, len(opts.BlockedResourceTypes))
		for _, t := range opts.BlockedResourceTypes {
			blocked[t] = true
		}
		if err := page.Route("**/*", func(route playwright.Route) {
			if blocked[route.Request().ResourceType()] {
				route.Abort()
				return
			}
			route.Continue()
		}); err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to install resource filter: %w", err)
		}
	}

	return b, nil
}

func (b *Browser) Page() playwright.Page {
	return b.page
}

// Navigate loads url on the session page, waiting for DOM content only.
func (b *Browser) Navigate(url string) error {
	_, err := b.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// DismissConsent clicks the first cookie-consent button it can find. Returns
// true if a button was clicked.
func (b *Browser) DismissConsent() bool {
	candidates := []string{
		"同意する", "同意して続行", "すべてのCookieを受け入れる",
		"Accept", "Accept Cookies", "Allow all cookies",
	}
	for _, name := range candidates {
		btn := b.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: name}).First()
		if err := btn.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(1200)}); err == nil {
			b.logger.Debug("dismissed consent dialog", "button", name)
			return true
		}
	}
	return false
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
