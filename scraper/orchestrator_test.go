package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Pererenchina/home-monitor-bot/delivery"
	"github.com/Pererenchina/home-monitor-bot/filters"
	"github.com/Pererenchina/home-monitor-bot/models"
	"github.com/Pererenchina/home-monitor-bot/normalize"
	"github.com/Pererenchina/home-monitor-bot/storage"
)

type fakeAdapter struct {
	id       string
	listings []models.RawListing
	err      error
	delay    time.Duration
}

func (a *fakeAdapter) ID() string   { return a.id }
func (a *fakeAdapter) Name() string { return a.id }

func (a *fakeAdapter) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.listings, a.err
}

type sentMsg struct {
	recipientID int64
	listingID   string
}

type fakeGateway struct {
	mu     sync.Mutex
	sent   []sentMsg
	failOn map[string]error
}

func (g *fakeGateway) Send(_ context.Context, recipientID int64, l models.Listing) error {
	if err, ok := g.failOn[l.ID]; ok {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMsg{recipientID: recipientID, listingID: l.ID})
	return nil
}

// memStore is an in-memory Store for orchestrator tests. Only the methods
// the cycle touches are functional.
type memStore struct {
	mu         sync.Mutex
	listings   map[string]models.Listing
	deliveries map[string]map[int64]bool
	specs      []filters.Spec
	observeErr error
	markErr    error
	markCalls  []string
}

func newMemStore() *memStore {
	return &memStore{
		listings:   make(map[string]models.Listing),
		deliveries: make(map[string]map[int64]bool),
	}
}

func (s *memStore) Observe(_ context.Context, l models.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observeErr != nil {
		return false, s.observeErr
	}
	if _, ok := s.listings[l.ID]; ok {
		return false, nil
	}
	s.listings[l.ID] = l
	return true, nil
}

func (s *memStore) GetListing(_ context.Context, id string) (*models.StoredListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, nil
	}
	return &models.StoredListing{Listing: l}, nil
}

func (s *memStore) HasBeenSentTo(_ context.Context, id string, recipientID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[id][recipientID], nil
}

func (s *memStore) MarkSentTo(_ context.Context, id string, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls = append(s.markCalls, id)
	if s.markErr != nil {
		return s.markErr
	}
	if s.deliveries[id] == nil {
		s.deliveries[id] = make(map[int64]bool)
	}
	s.deliveries[id][recipientID] = true
	return nil
}

func (s *memStore) SaveFilterSpec(context.Context, *filters.Spec) error     { return nil }
func (s *memStore) DeleteFilterSpec(context.Context, int64) error           { return nil }
func (s *memStore) SetFilterSpecActive(context.Context, int64, bool) error  { return nil }
func (s *memStore) FilterSpecsByRecipient(context.Context, int64) ([]filters.Spec, error) {
	return nil, nil
}

func (s *memStore) ActiveFilterSpecs(context.Context) ([]filters.Spec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]filters.Spec(nil), s.specs...), nil
}

func (s *memStore) CreateCycleRun(context.Context, *models.CycleRun) error { return nil }
func (s *memStore) FinishCycleRun(context.Context, *models.CycleRun) error { return nil }

func (s *memStore) OldestActiveListings(context.Context, time.Time, int) ([]models.StoredListing, error) {
	return nil, nil
}
func (s *memStore) TouchListing(context.Context, string, time.Time) error  { return nil }
func (s *memStore) MarkListingInactive(context.Context, string) error      { return nil }
func (s *memStore) PruneInactiveBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (s *memStore) Close() error { return nil }

var _ storage.Store = (*memStore)(nil)
var _ delivery.Gateway = (*fakeGateway)(nil)

func rawListing(source string, n int) models.RawListing {
	return models.RawListing{
		Source:       source,
		URL:          fmt.Sprintf("https://example.by/%s/%d", source, n),
		AddressText:  "Минск, Немига 5",
		PriceText:    "450 $",
		RoomsText:    "2-комнатная",
		LandlordText: "от собственника",
	}
}

func newTestOrchestrator(adapters []Adapter, store *memStore, gw *fakeGateway, maxPerCycle int) *Orchestrator {
	return NewOrchestrator(adapters, normalize.New(normalize.DefaultOptions()), store, gw, OrchestratorConfig{
		MaxPerCycle: maxPerCycle,
	})
}

func matchAllSpec(recipientID int64) filters.Spec {
	return filters.Spec{ID: recipientID, RecipientID: recipientID, Name: "всё", Active: true}
}

func TestRunCycle_DeliversFreshListings(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	gw := &fakeGateway{}
	o := newTestOrchestrator([]Adapter{
		&fakeAdapter{id: "kufar", listings: []models.RawListing{rawListing("kufar", 1), rawListing("kufar", 2)}},
	}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if run.ListingsFetched != 2 || run.ListingsNew != 2 || run.ListingsDelivered != 2 {
		t.Fatalf("unexpected run counters: %+v", run)
	}
	if len(gw.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(gw.sent))
	}
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
}

func TestRunCycle_SecondCycleSendsNothing(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	gw := &fakeGateway{}
	adapter := &fakeAdapter{id: "kufar", listings: []models.RawListing{rawListing("kufar", 1)}}
	o := newTestOrchestrator([]Adapter{adapter}, store, gw, 15)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if run.ListingsNew != 0 || run.ListingsDelivered != 0 {
		t.Fatalf("second cycle re-delivered: %+v", run)
	}
	if len(gw.sent) != 1 {
		t.Fatalf("expected exactly 1 send across both cycles, got %d", len(gw.sent))
	}
}

func TestRunCycle_SourceFailureIsolated(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	gw := &fakeGateway{}
	o := newTestOrchestrator([]Adapter{
		&fakeAdapter{id: "kufar", err: errors.New("blocked")},
		&fakeAdapter{id: "onliner", listings: []models.RawListing{rawListing("onliner", 1)}},
	}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if run.SourceErrors != 1 {
		t.Fatalf("expected 1 source error, got %d", run.SourceErrors)
	}
	if run.ListingsDelivered != 1 {
		t.Fatalf("failing source blocked the healthy one: %+v", run)
	}
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("one failing source must not fail the run, got %s", run.Status)
	}
}

func TestRunCycle_AllSourcesFailedMarksRunFailed(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	o := newTestOrchestrator([]Adapter{
		&fakeAdapter{id: "kufar", err: errors.New("blocked")},
		&fakeAdapter{id: "onliner", err: errors.New("timeout")},
	}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if run.Status != models.RunStatusFailed {
		t.Fatalf("expected failed run when every source errors, got %s", run.Status)
	}
}

func TestRunCycle_WithinCycleDedup(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	gw := &fakeGateway{}
	same := rawListing("kufar", 1)
	// Same listing surfaced by two sources with tracker noise on the URL.
	variant := same
	variant.Source = "onliner"
	variant.URL = same.URL + "?utm_source=feed"
	o := newTestOrchestrator([]Adapter{
		&fakeAdapter{id: "kufar", listings: []models.RawListing{same}},
		&fakeAdapter{id: "onliner", listings: []models.RawListing{variant}},
	}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if run.ListingsNew != 1 {
		t.Fatalf("expected within-cycle dedup to 1 listing, got %d", run.ListingsNew)
	}
	if len(gw.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(gw.sent))
	}
}

func TestRunCycle_CapKeepsTail(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	gw := &fakeGateway{}

	var raws []models.RawListing
	for i := 0; i < 20; i++ {
		raws = append(raws, rawListing("kufar", i))
	}
	o := newTestOrchestrator([]Adapter{&fakeAdapter{id: "kufar", listings: raws}}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if run.ListingsDelivered != 15 {
		t.Fatalf("expected cap of 15, delivered %d", run.ListingsDelivered)
	}

	// The tail of the batch survives the cap, not the head.
	firstID := mustID(t, raws[0].URL)
	lastID := mustID(t, raws[19].URL)
	sentSet := make(map[string]bool)
	for _, m := range gw.sent {
		sentSet[m.listingID] = true
	}
	if sentSet[firstID] {
		t.Fatalf("expected oldest over-cap listing dropped")
	}
	if !sentSet[lastID] {
		t.Fatalf("expected most recent listing delivered")
	}
}

func TestRunCycle_CapRemainderDeliveredNextCycle(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	gw := &fakeGateway{}

	var raws []models.RawListing
	for i := 0; i < 20; i++ {
		raws = append(raws, rawListing("kufar", i))
	}
	o := newTestOrchestrator([]Adapter{&fakeAdapter{id: "kufar", listings: raws}}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if run.ListingsDelivered != 15 {
		t.Fatalf("expected cap of 15, delivered %d", run.ListingsDelivered)
	}

	// The source still serves all 20; the 5 cut by the cap were never
	// marked sent, so the next cycle picks them up.
	run, err = o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if run.ListingsNew != 0 {
		t.Fatalf("re-observed listings counted as new: %+v", run)
	}
	if run.ListingsDelivered != 5 {
		t.Fatalf("expected the 5 over-cap listings delivered, got %d", run.ListingsDelivered)
	}

	// Every listing reached the recipient exactly once.
	sentSet := make(map[string]int)
	for _, m := range gw.sent {
		sentSet[m.listingID]++
	}
	if len(sentSet) != 20 {
		t.Fatalf("expected 20 distinct listings sent, got %d", len(sentSet))
	}
	for id, n := range sentSet {
		if n != 1 {
			t.Fatalf("listing %s sent %d times", id, n)
		}
	}
}

func TestRunCycle_GatewayFailureDoesNotMark(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	raw := rawListing("kufar", 1)
	id := mustID(t, raw.URL)
	gw := &fakeGateway{failOn: map[string]error{id: errors.New("telegram down")}}
	adapter := &fakeAdapter{id: "kufar", listings: []models.RawListing{raw}}
	o := newTestOrchestrator([]Adapter{adapter}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if run.ListingsDelivered != 0 {
		t.Fatalf("failed send counted as delivered: %+v", run)
	}
	sent, _ := store.HasBeenSentTo(context.Background(), id, 100)
	if sent {
		t.Fatalf("listing marked sent although the gateway failed")
	}

	// The listing stayed unmarked, so once the gateway recovers the next
	// cycle that still sees it retries the send.
	gw.failOn = nil
	run, _ = o.RunCycle(context.Background())
	if run.ListingsNew != 0 {
		t.Fatalf("already-observed listing counted as new: %+v", run)
	}
	if run.ListingsDelivered != 1 {
		t.Fatalf("recovered listing not retried: %+v", run)
	}
	sent, _ = store.HasBeenSentTo(context.Background(), id, 100)
	if !sent {
		t.Fatalf("retried listing not marked sent")
	}

	// A third cycle sends nothing more.
	run, _ = o.RunCycle(context.Background())
	if run.ListingsDelivered != 0 || len(gw.sent) != 1 {
		t.Fatalf("retry broke at-most-once: run=%+v sends=%d", run, len(gw.sent))
	}
}

func TestRunCycle_StoreErrorDropsListing(t *testing.T) {
	store := newMemStore()
	store.specs = []filters.Spec{matchAllSpec(100)}
	store.observeErr = errors.New("db locked")
	gw := &fakeGateway{}
	o := newTestOrchestrator([]Adapter{
		&fakeAdapter{id: "kufar", listings: []models.RawListing{rawListing("kufar", 1)}},
	}, store, gw, 15)

	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	// Fail closed: no confirmation of first-seen means no delivery.
	if run.ListingsNew != 0 || len(gw.sent) != 0 {
		t.Fatalf("listing delivered without persisted identity: %+v", run)
	}
	// A store failure is not a source failure and does not fail the run.
	if run.StoreErrors != 1 || run.SourceErrors != 0 {
		t.Fatalf("store failure miscounted: %+v", run)
	}
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("store failure marked the run failed: %+v", run)
	}
}

func TestRunCycle_FilterRouting(t *testing.T) {
	store := newMemStore()
	rooms2, rooms3 := 2, 3
	store.specs = []filters.Spec{
		{ID: 1, RecipientID: 100, Active: true, Rooms: &rooms2},
		{ID: 2, RecipientID: 200, Active: true, Rooms: &rooms3},
	}
	gw := &fakeGateway{}
	o := newTestOrchestrator([]Adapter{
		&fakeAdapter{id: "kufar", listings: []models.RawListing{rawListing("kufar", 1)}},
	}, store, gw, 15)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	// The sample listing has 2 rooms: only recipient 100 gets it.
	if len(gw.sent) != 1 || gw.sent[0].recipientID != 100 {
		t.Fatalf("unexpected routing: %+v", gw.sent)
	}
}

func TestRunCycle_OverlappingTriggerDropped(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	slow := &fakeAdapter{id: "kufar", delay: 200 * time.Millisecond}
	o := newTestOrchestrator([]Adapter{slow}, store, gw, 15)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.RunCycle(context.Background()); err != nil {
			t.Errorf("cycle failed: %v", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	run, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("overlapping trigger errored: %v", err)
	}
	if run != nil {
		t.Fatalf("overlapping trigger should be dropped, got run %+v", run)
	}
	<-done
}

func mustID(t *testing.T, rawURL string) string {
	t.Helper()
	n := normalize.New(normalize.DefaultOptions())
	l, err := n.Normalize(models.RawListing{Source: "x", URL: rawURL})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	return l.ID
}
