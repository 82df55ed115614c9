// Package workers holds the background maintenance loops that run beside
// the main monitoring cycle.
package workers

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Pererenchina/home-monitor-bot/httputil"
	"github.com/Pererenchina/home-monitor-bot/storage"
)

// HealthcheckWorker probes the oldest active listings and marks delisted
// ones inactive so they stop counting against liveness queries and become
// eligible for pruning.
type HealthcheckWorker struct {
	store      storage.Store
	httpClient *http.Client
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	triggerCh  chan struct{}
}

func NewHealthcheckWorker(store storage.Store, interval, staleAfter time.Duration, batchSize int) *HealthcheckWorker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects off a listing page usually mean it was delisted;
			// inspect them instead of following.
			return http.ErrUseLastResponse
		},
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &HealthcheckWorker{
		store:      store,
		httpClient: client,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		triggerCh:  make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run a batch immediately.
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *HealthcheckWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runBatch(ctx)
		case <-w.triggerCh:
			w.runBatch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *HealthcheckWorker) runBatch(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.staleAfter)
	listings, err := w.store.OldestActiveListings(ctx, cutoff, w.batchSize)
	if err != nil {
		log.Printf("Healthcheck: failed to load stale listings: %v", err)
		return
	}
	if len(listings) == 0 {
		return
	}
	log.Printf("Healthcheck: probing %d listings", len(listings))

	for _, l := range listings {
		if ctx.Err() != nil {
			return
		}
		live, err := w.probe(ctx, l.URL)
		if err != nil {
			// Network trouble is not evidence of delisting; leave it for
			// the next batch.
			log.Printf("Healthcheck: probe failed for %s: %v", l.URL, err)
			continue
		}
		if live {
			if err := w.store.TouchListing(ctx, l.ID, time.Now().UTC()); err != nil {
				log.Printf("Healthcheck: touch failed for %s: %v", l.ID, err)
			}
			continue
		}
		log.Printf("Healthcheck: listing %s delisted (%s)", l.ID, l.URL)
		if err := w.store.MarkListingInactive(ctx, l.ID); err != nil {
			log.Printf("Healthcheck: mark inactive failed for %s: %v", l.ID, err)
		}
	}
}

// probe does a lightweight HEAD request. 404/410 mean delisted; a redirect
// away from the listing path means delisted; anything else counts as live.
func (w *HealthcheckWorker) probe(ctx context.Context, listingURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, listingURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", httputil.UserAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return false, nil
	case http.StatusMovedPermanently, http.StatusFound:
		return !isDelistRedirect(listingURL, resp.Header.Get("Location")), nil
	default:
		return true, nil
	}
}

// isDelistRedirect reports whether a redirect points away from the listing
// itself, typically back to a category or search page. Scheme upgrades and
// trailing-slash normalizations keep the same path and do not count.
func isDelistRedirect(listingURL, location string) bool {
	if location == "" {
		return false
	}
	orig, err1 := url.Parse(listingURL)
	dest, err2 := url.Parse(location)
	if err1 != nil || err2 != nil {
		return false
	}
	origPath := strings.TrimRight(orig.Path, "/")
	destPath := strings.TrimRight(dest.Path, "/")
	if destPath == "" || destPath == origPath {
		return destPath == "" && origPath != ""
	}
	return true
}
