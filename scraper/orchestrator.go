package scraper

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pererenchina/home-monitor-bot/delivery"
	"github.com/Pererenchina/home-monitor-bot/filters"
	"github.com/Pererenchina/home-monitor-bot/models"
	"github.com/Pererenchina/home-monitor-bot/normalize"
	"github.com/Pererenchina/home-monitor-bot/storage"
)

// Orchestrator runs one full monitoring cycle: fan out over the configured
// source adapters, normalize and dedup what came back, persist first-seen
// listings, and deliver matches to each recipient's filters. One cycle at a
// time; a trigger that arrives while a cycle runs is dropped, not queued.
type Orchestrator struct {
	adapters   []Adapter
	normalizer *normalize.Normalizer
	store      storage.Store
	gateway    delivery.Gateway

	fetchTimeout time.Duration
	maxPerCycle  int
	sendDelay    time.Duration

	running sync.Mutex
}

type OrchestratorConfig struct {
	FetchTimeout time.Duration
	MaxPerCycle  int
	SendDelay    time.Duration
}

func NewOrchestrator(adapters []Adapter, n *normalize.Normalizer, store storage.Store, gw delivery.Gateway, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxPerCycle <= 0 {
		cfg.MaxPerCycle = 15
	}
	return &Orchestrator{
		adapters:     adapters,
		normalizer:   n,
		store:        store,
		gateway:      gw,
		fetchTimeout: cfg.FetchTimeout,
		maxPerCycle:  cfg.MaxPerCycle,
		sendDelay:    cfg.SendDelay,
	}
}

type sourceResult struct {
	adapter  Adapter
	listings []models.RawListing
	err      error
}

// RunCycle executes one cycle end to end. It returns the finished run
// record; only infrastructure failures (store unreachable at the start)
// surface as errors, per-source failures are recorded on the run.
func (o *Orchestrator) RunCycle(ctx context.Context) (*models.CycleRun, error) {
	if !o.running.TryLock() {
		log.Printf("Cycle trigger skipped: previous cycle still running")
		return nil, nil
	}
	defer o.running.Unlock()

	run := &models.CycleRun{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	if err := o.store.CreateCycleRun(ctx, run); err != nil {
		return nil, err
	}

	raws := o.fetchAll(ctx, run)
	run.ListingsFetched = len(raws)

	observed := o.observe(ctx, raws, run)

	delivered := o.deliver(ctx, observed)
	run.ListingsDelivered = delivered

	run.Status = models.RunStatusCompleted
	if run.SourceErrors == len(o.adapters) && len(o.adapters) > 0 {
		run.Status = models.RunStatusFailed
	}
	now := time.Now().UTC()
	run.FinishedAt = &now
	if err := o.store.FinishCycleRun(ctx, run); err != nil {
		log.Printf("Failed to finish cycle run %s: %v", run.ID, err)
	}

	log.Printf("Cycle %s: fetched=%d new=%d delivered=%d source_errors=%d store_errors=%d in %s",
		run.ID, run.ListingsFetched, run.ListingsNew, run.ListingsDelivered,
		run.SourceErrors, run.StoreErrors, now.Sub(run.StartedAt).Round(time.Millisecond))
	return run, nil
}

// fetchAll runs every adapter concurrently and flattens the results in
// completion order. A failing source never poisons the others; it only
// bumps the run's error count.
func (o *Orchestrator) fetchAll(ctx context.Context, run *models.CycleRun) []models.RawListing {
	results := make(chan sourceResult, len(o.adapters))

	var wg sync.WaitGroup
	for _, a := range o.adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			fctx := ctx
			if o.fetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
				defer cancel()
			}
			listings, err := a.FetchListings(fctx)
			results <- sourceResult{adapter: a, listings: listings, err: err}
		}(a)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var all []models.RawListing
	for res := range results {
		if res.err != nil {
			log.Printf("Source %s failed: %v", res.adapter.ID(), res.err)
			run.SourceErrors++
			continue
		}
		log.Printf("Source %s returned %d listings", res.adapter.ID(), len(res.listings))
		all = append(all, res.listings...)
	}
	return all
}

// observe normalizes the raw batch, drops within-cycle duplicates, and
// persists each listing. Every successfully persisted listing moves on to
// delivery, first-seen or not: the per-recipient delivery marks decide what
// actually gets sent, so a listing capped out or failed last cycle is
// picked up again as long as a source still serves it. A store error drops
// the listing for this cycle so a flaky database can never cause a
// duplicate send.
func (o *Orchestrator) observe(ctx context.Context, raws []models.RawListing, run *models.CycleRun) []models.Listing {
	var observed []models.Listing
	seen := make(map[string]struct{}, len(raws))

	for _, raw := range raws {
		listing, err := o.normalizer.Normalize(raw)
		if err != nil {
			log.Printf("Dropping unnormalizable listing from %s: %v", raw.Source, err)
			continue
		}
		if _, dup := seen[listing.ID]; dup {
			continue
		}
		seen[listing.ID] = struct{}{}

		firstSeen, err := o.store.Observe(ctx, listing)
		if err != nil {
			log.Printf("Failed to persist listing %s: %v", listing.ID, err)
			run.StoreErrors++
			continue
		}
		if firstSeen {
			run.ListingsNew++
		}
		observed = append(observed, listing)
	}
	return observed
}

// deliver matches the cycle's observed listings against every recipient's
// active filters and sends at most maxPerCycle per recipient, keeping the
// most recently fetched ones when over the cap. The delivery marks carry
// the at-most-once guarantee, so a listing cut by the cap or lost to a
// gateway failure stays unmarked and is retried on a later cycle. Each
// send is marked in the store after the gateway accepts it; a failed mark
// is retried once and otherwise logged loudly, trading a possible
// duplicate next cycle for never losing a listing silently.
func (o *Orchestrator) deliver(ctx context.Context, listings []models.Listing) int {
	if len(listings) == 0 {
		return 0
	}
	specs, err := o.store.ActiveFilterSpecs(ctx)
	if err != nil {
		log.Printf("Failed to load filter specs, skipping delivery: %v", err)
		return 0
	}

	byRecipient := make(map[int64][]filters.Spec)
	for _, s := range specs {
		byRecipient[s.RecipientID] = append(byRecipient[s.RecipientID], s)
	}

	delivered := 0
	for recipientID, recipientSpecs := range byRecipient {
		candidates := o.candidatesFor(ctx, recipientID, recipientSpecs, listings)
		if len(candidates) > o.maxPerCycle {
			log.Printf("Recipient %d: capping %d matches to %d", recipientID, len(candidates), o.maxPerCycle)
			candidates = candidates[len(candidates)-o.maxPerCycle:]
		}
		for _, listing := range candidates {
			if ctx.Err() != nil {
				return delivered
			}
			if err := o.gateway.Send(ctx, recipientID, listing); err != nil {
				log.Printf("Failed to send %s to %d: %v", listing.ID, recipientID, err)
				continue
			}
			if err := o.store.MarkSentTo(ctx, listing.ID, recipientID); err != nil {
				if err = o.store.MarkSentTo(ctx, listing.ID, recipientID); err != nil {
					log.Printf("DELIVERY MARK LOST for listing %s recipient %d, duplicate possible: %v",
						listing.ID, recipientID, err)
				}
			}
			delivered++
			if o.sendDelay > 0 {
				select {
				case <-time.After(o.sendDelay):
				case <-ctx.Done():
					return delivered
				}
			}
		}
	}
	return delivered
}

// candidatesFor keeps the listings that match at least one of the
// recipient's specs and have never been sent to that recipient. Order is
// preserved so the over-cap trim keeps the tail of the fetch batch.
func (o *Orchestrator) candidatesFor(ctx context.Context, recipientID int64, specs []filters.Spec, listings []models.Listing) []models.Listing {
	var out []models.Listing
	for _, listing := range listings {
		matched := false
		for _, spec := range specs {
			if filters.Matches(spec, listing) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		sent, err := o.store.HasBeenSentTo(ctx, listing.ID, recipientID)
		if err != nil {
			log.Printf("Delivery check failed for %s to %d, skipping: %v", listing.ID, recipientID, err)
			continue
		}
		if !sent {
			out = append(out, listing)
		}
	}
	return out
}
