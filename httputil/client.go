package httputil

import (
	"net/http"
	"time"
)

const (
	// Browser-like identity for the direct transport; the target sites
	// serve bot-shaped clients an empty shell or a block page.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7"
)

// NewClient builds the HTTP client for the direct (fast, stateless)
// transport.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// SetBrowserHeaders applies the request headers the listing sites expect
// from a regular browser.
func SetBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)
}
