package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Pererenchina/home-monitor-bot/models"
	"github.com/Pererenchina/home-monitor-bot/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func observeListing(t *testing.T, store storage.Store, id, url string) {
	t.Helper()
	_, err := store.Observe(context.Background(), models.Listing{
		ID:       id,
		Source:   "Kufar",
		Address:  "Минск",
		Landlord: models.LandlordOwner,
		URL:      url,
	})
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
}

func TestProbe_StatusCodes(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	w := NewHealthcheckWorker(newTestStore(t), time.Hour, time.Hour, 10)

	cases := []struct {
		status int
		live   bool
	}{
		{http.StatusOK, true},
		{http.StatusNotFound, false},
		{http.StatusGone, false},
		{http.StatusForbidden, true},
		{http.StatusInternalServerError, true},
	}
	for _, tc := range cases {
		status = tc.status
		live, err := w.probe(context.Background(), srv.URL+"/listing/123")
		if err != nil {
			t.Fatalf("probe failed for %d: %v", tc.status, err)
		}
		if live != tc.live {
			t.Fatalf("status %d: expected live=%v, got %v", tc.status, tc.live, live)
		}
	}
}

func TestProbe_RedirectToCategoryIsDelisted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/snyat/kvartiru", http.StatusFound)
	}))
	defer srv.Close()

	w := NewHealthcheckWorker(newTestStore(t), time.Hour, time.Hour, 10)
	live, err := w.probe(context.Background(), srv.URL+"/listing/123")
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if live {
		t.Fatalf("redirect away from the listing should count as delisted")
	}
}

func TestIsDelistRedirect(t *testing.T) {
	cases := []struct {
		listing, location string
		want              bool
	}{
		// Scheme upgrade keeps the path.
		{"http://re.kufar.by/vl/123", "https://re.kufar.by/vl/123", false},
		// Trailing slash normalization.
		{"https://re.kufar.by/vl/123", "https://re.kufar.by/vl/123/", false},
		// Back to a category page.
		{"https://re.kufar.by/vl/123", "https://re.kufar.by/l/minsk/snyat/kvartiru", true},
		// Back to the site root.
		{"https://re.kufar.by/vl/123", "https://re.kufar.by/", true},
		{"https://re.kufar.by/vl/123", "", false},
	}
	for _, tc := range cases {
		if got := isDelistRedirect(tc.listing, tc.location); got != tc.want {
			t.Fatalf("(%q -> %q): expected %v, got %v", tc.listing, tc.location, tc.want, got)
		}
	}
}

func TestRunBatch_MarksDelistedInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newTestStore(t)
	observeListing(t, store, "gone", srv.URL+"/gone")
	observeListing(t, store, "alive", srv.URL+"/alive")

	w := NewHealthcheckWorker(store, time.Hour, -time.Hour, 10)
	w.runBatch(context.Background())

	ctx := context.Background()
	stale, err := store.OldestActiveListings(ctx, time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("stale query failed: %v", err)
	}
	for _, l := range stale {
		if l.ID == "gone" {
			t.Fatalf("delisted listing still active")
		}
	}

	// The live listing was touched, so it left the stale window entirely.
	stale, err = store.OldestActiveListings(ctx, time.Now().UTC().Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("stale query failed: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale listings after the batch, got %d", len(stale))
	}
}

func TestPruneWorker_RemovesAgedInactive(t *testing.T) {
	store := newTestStore(t)
	observeListing(t, store, "dead", "https://re.kufar.by/vl/dead")
	if err := store.MarkListingInactive(context.Background(), "dead"); err != nil {
		t.Fatalf("mark inactive failed: %v", err)
	}

	w := NewPruneWorker(store, time.Hour, -time.Hour)
	w.prune(context.Background())

	got, err := store.GetListing(context.Background(), "dead")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected inactive listing pruned")
	}
}

func TestPruneWorker_TriggerWakesRunLoop(t *testing.T) {
	store := newTestStore(t)
	observeListing(t, store, "dead", "https://re.kufar.by/vl/dead")
	if err := store.MarkListingInactive(context.Background(), "dead"); err != nil {
		t.Fatalf("mark inactive failed: %v", err)
	}

	// Interval far in the future: only a Trigger can cause a prune.
	w := NewPruneWorker(store, time.Hour, -time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Trigger()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := store.GetListing(context.Background(), "dead")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("trigger did not wake the run loop")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}
