package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Pererenchina/home-monitor-bot/config"
	"github.com/Pererenchina/home-monitor-bot/delivery"
	"github.com/Pererenchina/home-monitor-bot/models"
	"github.com/Pererenchina/home-monitor-bot/normalize"
	"github.com/Pererenchina/home-monitor-bot/scraper"
	"github.com/Pererenchina/home-monitor-bot/storage"
)

func newTestOrchestrator(t *testing.T) (*scraper.Orchestrator, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	o := scraper.NewOrchestrator(nil, normalize.New(normalize.DefaultOptions()),
		store, delivery.NewLogGateway(), scraper.OrchestratorConfig{})
	return o, store
}

func TestStart_InvalidCron(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := New(&config.Config{Scheduler: config.SchedulerConfig{Cron: "not a cron"}}, o)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}

func TestStart_IntervalRunsCycles(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		Interval:    20 * time.Millisecond,
		WarmupDelay: 0,
	}}
	s := New(cfg, o)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Enough for the immediate run plus at least one tick.
	time.Sleep(80 * time.Millisecond)
	s.Stop()
}

func TestStop_BeforeAnySchedule(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := New(&config.Config{}, o)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// No cron and no interval: Stop must not hang.
	s.Stop()
}

func TestTriggerNow(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := New(&config.Config{}, o)
	s.TriggerNow(context.Background())
}

// slowAdapter holds a fetch open until released so a test can pin a cycle
// in flight.
type slowAdapter struct {
	started  chan struct{}
	release  chan struct{}
	finished chan struct{}
}

func (a *slowAdapter) ID() string   { return "slow" }
func (a *slowAdapter) Name() string { return "Slow" }

func (a *slowAdapter) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	close(a.started)
	<-a.release
	close(a.finished)
	return nil, nil
}

func TestStop_WaitsForInFlightCycle(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	adapter := &slowAdapter{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	o := scraper.NewOrchestrator([]scraper.Adapter{adapter}, normalize.New(normalize.DefaultOptions()),
		store, delivery.NewLogGateway(), scraper.OrchestratorConfig{})

	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		Interval:    time.Hour,
		WarmupDelay: 0,
	}}
	s := New(cfg, o)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Wait for the warmup cycle to reach the adapter, then stop while it
	// is still fetching.
	select {
	case <-adapter.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("cycle never started")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("Stop returned while a cycle was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(adapter.release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not return after the cycle finished")
	}
	select {
	case <-adapter.finished:
	default:
		t.Fatalf("Stop returned before the fetch completed")
	}
}
