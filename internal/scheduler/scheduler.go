// Package scheduler drives recurring collection cycles. Each enabled
// source gets its own cron entry at its configured interval, so a slow
// feed on a long interval never dictates the cadence of the rest.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"newspipe/internal/collector"
	"newspipe/internal/source"
)

// Scheduler owns the cron runner and the orchestrator it triggers.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *collector.Orchestrator

	// ctx is the lifetime handed to Start; cron-triggered cycles run
	// under it so shutdown cancellation reaches in-flight fetches.
	ctx context.Context
}

// New wires one cron entry per enabled source. defaultInterval is used
// for sources that do not set their own.
func New(orch *collector.Orchestrator, sources []source.Source, defaultInterval time.Duration) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, orchestrator: orch, ctx: context.Background()}

	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		interval := src.Interval
		if interval <= 0 {
			interval = defaultInterval
		}
		name := src.Name
		spec := fmt.Sprintf("@every %s", interval)
		if _, err := c.AddFunc(spec, func() { s.runSource(name) }); err != nil {
			return nil, fmt.Errorf("scheduling source %s: %w", name, err)
		}
		log.Printf("scheduler: %s every %s", name, interval)
	}
	return s, nil
}

func (s *Scheduler) runSource(name string) {
	if s.ctx.Err() != nil {
		return
	}
	s.orchestrator.RunCycle(s.ctx, []string{name})
}

// Start begins the cron loop and kicks off an immediate first cycle
// over all sources, so a fresh daemon has data before the first
// interval elapses. Cancelling ctx stops further cycles from being
// issued and cancels any still in flight.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	go func() {
		if ctx.Err() == nil {
			s.orchestrator.RunCycle(ctx, nil)
		}
	}()
}

// Stop halts scheduling and waits for any job already running to
// finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
