package scraper

import (
	"context"
	"log"
	"time"
)

// Fetcher applies the transport-fallback policy: try the preferred
// strategy, and when it yields no usable content, try the other one. The
// direct transport is primary by default; sources known to script-gate
// their markup declare the rendered transport as primary instead.
type Fetcher struct {
	direct  *DirectTransport
	session *SessionManager
}

func NewFetcher(timeout time.Duration, session *SessionManager) *Fetcher {
	return &Fetcher{
		direct:  NewDirectTransport(timeout),
		session: session,
	}
}

// Page fetches one URL with fallback. preferRendered flips the order; the
// policy itself (fast first, robust second, or the reverse) is fixed.
func (f *Fetcher) Page(ctx context.Context, url string, preferRendered bool) (string, error) {
	if preferRendered {
		html, err := f.rendered(ctx, url)
		if err == nil {
			return html, nil
		}
		log.Printf("Rendered fetch failed for %s, falling back to direct: %v", url, err)
		return f.direct.Fetch(ctx, url)
	}

	html, err := f.direct.Fetch(ctx, url)
	if err == nil {
		return html, nil
	}
	log.Printf("Direct fetch failed for %s, falling back to rendered: %v", url, err)
	return f.rendered(ctx, url)
}

func (f *Fetcher) rendered(ctx context.Context, url string) (string, error) {
	if err := f.session.Acquire(); err != nil {
		return "", err
	}
	defer f.session.Release()
	return f.session.Fetch(ctx, url)
}
