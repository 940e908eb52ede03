// Package helpers provides narrowly-scoped utilities for E2E testing.
package helpers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/gti/penpot-e2e/internal/poll"
	"github.com/gti/penpot-e2e/internal/visual"
)

// BrowserOptions configures NewBrowser.
type BrowserOptions struct {
	// Show runs the browser with a window, for local debugging.
	Show bool

	// Timeout bounds every element lookup and navigation. Defaults to 30 seconds.
	Timeout time.Duration

	// UpdateGolden makes MatchesGolden overwrite golden images instead of comparing.
	UpdateGolden bool
}

// Browser drives one headless browser page.
//
// It keeps the small surface of Navigate, Click, Fill, Text and Wait, plus
// session and screenshot support. Selectors belong to the tests, not here.
type Browser struct {
	browser      *rod.Browser
	page         *rod.Page
	timeout      time.Duration
	updateGolden bool
}

// NewBrowser launches a browser. Call Close when done:
//
//	browser, err := NewBrowser(BrowserOptions{})
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer browser.Close()
func NewBrowser(opts BrowserOptions) (*Browser, error) {
	url, err := launcher.New().Headless(!opts.Show).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Browser{
		browser:      browser,
		page:         page,
		timeout:      timeout,
		updateGolden: opts.UpdateGolden,
	}, nil
}

// UseSession copies session cookies, e.g. from an API login, into the browser
// so pages under baseURL open already logged in.
func (b *Browser) UseSession(baseURL string, cookies []*http.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   baseURL,
		})
	}
	if err := b.page.SetCookies(params); err != nil {
		return fmt.Errorf("failed to set session cookies: %w", err)
	}
	return nil
}

// Navigate loads url and waits for the page to finish loading.
func (b *Browser) Navigate(url string) error {
	if err := b.page.Timeout(b.timeout).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := b.page.Timeout(b.timeout).WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}
	return nil
}

// FollowActionLink opens a link taken from an email and returns the URL the
// application settled on, after any client-side redirect.
func (b *Browser) FollowActionLink(link string, settled func(url string) bool) (string, error) {
	if err := b.Navigate(link); err != nil {
		return "", err
	}
	if settled == nil {
		return b.URL(), nil
	}

	current, _, err := poll.Until(context.Background(), poll.Config{
		Timeout:  b.timeout,
		Interval: 200 * time.Millisecond,
		Subject:  "redirect from " + link,
	}, func(context.Context) (string, bool, error) {
		u := b.URL()
		return u, settled(u), nil
	})
	if err != nil {
		return b.URL(), fmt.Errorf("page did not settle after opening %s: %w", link, err)
	}
	return current, nil
}

// URL returns the address of the current page.
func (b *Browser) URL() string {
	info, err := b.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Click clicks the element matching the CSS selector once it is visible.
func (b *Browser) Click(selector string) error {
	el, err := b.page.Timeout(b.timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("failed to find element %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click element %s: %w", selector, err)
	}
	return nil
}

// Fill replaces the value of the input matching the CSS selector.
func (b *Browser) Fill(selector, value string) error {
	el, err := b.page.Timeout(b.timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("failed to find element %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select text in %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("failed to input text into %s: %w", selector, err)
	}
	return nil
}

// Text returns the text content of the element matching the CSS selector.
func (b *Browser) Text(selector string) (string, error) {
	el, err := b.page.Timeout(b.timeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("failed to find element %s: %w", selector, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("failed to get text from %s: %w", selector, err)
	}
	return text, nil
}

// Wait waits for an element matching the CSS selector to appear.
func (b *Browser) Wait(selector string) error {
	_, err := b.page.Timeout(b.timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("timeout waiting for element %s: %w", selector, err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (b *Browser) Screenshot() ([]byte, error) {
	img, err := b.page.Timeout(b.timeout).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return img, nil
}

// ErrNoGolden is returned by MatchesGolden when the golden image does not
// exist and golden updates are off.
var ErrNoGolden = errors.New("golden image missing")

// MatchesGolden compares the viewport with the PNG at goldenPath. On a
// mismatch the screenshot and a diff image are written next to the golden
// file as <name>.actual.png and <name>.diff.png.
//
// With UpdateGolden set the screenshot becomes the new golden image. A missing
// golden image is ErrNoGolden otherwise.
func (b *Browser) MatchesGolden(goldenPath string, tolerance float64) (visual.Result, error) {
	shot, err := b.Screenshot()
	if err != nil {
		return visual.Result{}, err
	}
	return matchGolden(shot, goldenPath, tolerance, b.updateGolden)
}

func matchGolden(shot []byte, goldenPath string, tolerance float64, update bool) (visual.Result, error) {
	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return visual.Result{}, fmt.Errorf("failed to create golden dir: %w", err)
		}
		if err := os.WriteFile(goldenPath, shot, 0o644); err != nil {
			return visual.Result{}, fmt.Errorf("failed to write golden image: %w", err)
		}
		return visual.Result{Match: true}, nil
	}

	if _, err := os.Stat(goldenPath); errors.Is(err, fs.ErrNotExist) {
		return visual.Result{}, fmt.Errorf("%w: %s", ErrNoGolden, goldenPath)
	}

	res, err := visual.CompareFiles(shot, goldenPath, tolerance)
	if err != nil {
		return res, err
	}
	if !res.Match {
		base := strings.TrimSuffix(goldenPath, filepath.Ext(goldenPath))
		_ = os.WriteFile(base+".actual.png", shot, 0o644)
		_ = visual.WritePNG(base+".diff.png", res.Diff)
	}
	return res, nil
}

// Close releases browser resources.
func (b *Browser) Close() error {
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}
