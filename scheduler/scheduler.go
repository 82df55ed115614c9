package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Pererenchina/home-monitor-bot/config"
	"github.com/Pererenchina/home-monitor-bot/scraper"
)

// Scheduler drives the monitoring loop: an optional warmup delay, then
// either a cron expression or a fixed interval. Stop waits for an in-flight
// cycle to finish before returning.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runCycle(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.Scheduler.Interval <= 0 {
		log.Println("No schedule configured, daemon will only run on demand")
		return nil
	}

	log.Printf("Starting scheduler with interval: %s (warmup %s)",
		s.cfg.Scheduler.Interval, s.cfg.Scheduler.WarmupDelay)
	s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Let transports and the browser session settle before the first run.
		if s.cfg.Scheduler.WarmupDelay > 0 {
			select {
			case <-time.After(s.cfg.Scheduler.WarmupDelay):
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
		s.runCycle(ctx)

		for {
			select {
			case <-s.ticker.C:
				s.runCycle(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// TriggerNow runs a cycle outside the schedule. The orchestrator drops the
// trigger if a cycle is already running.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.orchestrator.RunCycle(ctx); err != nil {
		log.Printf("Scheduled cycle error: %v", err)
	}
}

// Stop halts the schedule and waits for the loop goroutine. A cycle that
// is mid-flight finishes; new ticks are discarded.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.wg.Wait()
}
