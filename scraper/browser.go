package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/Pererenchina/home-monitor-bot/httputil"
)

// SessionManager owns the rendered transport: a single shared Chromium
// session, reference counted so it is reused across sources within a cycle
// and torn down only when no consumer remains. One browser session cannot
// be driven by concurrent callers, so rendered fetches queue behind the
// nav mutex while direct fetches are unaffected.
type SessionManager struct {
	maxScrolls int
	settle     time.Duration
	timeout    time.Duration

	mu      sync.Mutex // guards refs and session lifecycle
	refs    int
	pw      *playwright.Playwright
	browser playwright.Browser

	navMu sync.Mutex // serializes page navigation
}

func NewSessionManager(maxScrolls int, settle, timeout time.Duration) *SessionManager {
	if maxScrolls <= 0 {
		maxScrolls = 10
	}
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &SessionManager{
		maxScrolls: maxScrolls,
		settle:     settle,
		timeout:    timeout,
	}
}

// Acquire registers a consumer, booting the browser on the first one.
// Every successful Acquire must be paired with a Release.
func (m *SessionManager) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		if err := m.start(); err != nil {
			return err
		}
	}
	m.refs++
	return nil
}

// Release drops a consumer; the last one out tears the session down.
func (m *SessionManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		return
	}
	m.refs--
	if m.refs == 0 {
		m.stop()
	}
}

func (m *SessionManager) start() error {
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--lang=ru-RU",
		},
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("launch browser: %w", err)
	}

	m.pw = pw
	m.browser = browser
	log.Println("Rendered transport: browser session started")
	return nil
}

func (m *SessionManager) stop() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.pw != nil {
		m.pw.Stop()
		m.pw = nil
	}
	log.Println("Rendered transport: browser session stopped")
}

// Fetch navigates to the URL in the shared session, scrolls until
// lazy-loaded content stops arriving (bounded by maxScrolls, with a settle
// delay between scrolls, stopping early once the page height stabilizes)
// and returns the rendered HTML.
func (m *SessionManager) Fetch(ctx context.Context, url string) (string, error) {
	m.navMu.Lock()
	defer m.navMu.Unlock()

	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()
	if browser == nil {
		return "", fmt.Errorf("rendered fetch %s: session not acquired", url)
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(httputil.UserAgent),
	})
	if err != nil {
		return "", fmt.Errorf("new page: %w", err)
	}
	defer page.Close()

	timeoutMs := float64(m.timeout.Milliseconds())
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeoutMs),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return "", fmt.Errorf("goto %s: %w", url, err)
	}

	m.scrollUntilStable(ctx, page)

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("content %s: %w", url, err)
	}
	return content, nil
}

func (m *SessionManager) scrollUntilStable(ctx context.Context, page playwright.Page) {
	lastHeight := pageHeight(page)

	for i := 0; i < m.maxScrolls; i++ {
		if ctx.Err() != nil {
			return
		}

		if _, err := page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			log.Printf("Rendered transport: scroll failed: %v", err)
			return
		}
		page.WaitForTimeout(float64(m.settle.Milliseconds()))

		height := pageHeight(page)
		if height == lastHeight {
			break
		}
		lastHeight = height
	}

	page.Evaluate(`window.scrollTo(0, 0)`)
}

func pageHeight(page playwright.Page) float64 {
	result, err := page.Evaluate(`document.body.scrollHeight`)
	if err != nil {
		return 0
	}
	switch v := result.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
