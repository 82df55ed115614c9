package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Pererenchina/home-monitor-bot/httputil"
)

// DirectTransport is the fast, stateless strategy: one HTTP GET with
// browser-like headers. Script-gated pages come back as empty shells and
// are reported as errors so the caller can fall back to the rendered
// transport.
type DirectTransport struct {
	client *http.Client
}

func NewDirectTransport(timeout time.Duration) *DirectTransport {
	return &DirectTransport{client: httputil.NewClient(timeout)}
}

// minUsableBody filters out block pages and empty shells that come back
// with a 200 status.
const minUsableBody = 512

func (t *DirectTransport) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	httputil.SetBrowserHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("GET %s: read body: %w", url, err)
	}
	if len(body) < minUsableBody {
		return "", fmt.Errorf("GET %s: body too small (%d bytes)", url, len(body))
	}

	return string(body), nil
}
