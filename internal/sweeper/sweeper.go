// Package sweeper drives time-based lifecycle changes: expiring stale
// proposals, waking snoozed ones and resolving finished executions.
package sweeper

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"nudgeline/internal/engine"
)

const actorID = "sweeper"

type Sweeper struct {
	Engine engine.Engine
	cron   *cron.Cron
}

func New(eng engine.Engine) *Sweeper {
	return &Sweeper{Engine: eng}
}

// Result summarizes one sweep pass.
type Result struct {
	Expired  []string `json:"expired"`
	Woken    []string `json:"woken"`
	Resolved int      `json:"resolved"`
}

// SweepOnce runs a single pass. Expiry goes first so a snoozed proposal
// whose deadline passed during the snooze expires instead of waking.
// Re-running a pass is a no-op; every underlying update is guarded.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	expired, err := s.Engine.ExpireDueProposals(ctx, actorID)
	if err != nil {
		return res, err
	}
	res.Expired = expired
	woken, err := s.Engine.WakeDueProposals(ctx, actorID)
	if err != nil {
		return res, err
	}
	res.Woken = woken
	resolved, err := s.Engine.PollExecutions(ctx, actorID)
	if err != nil {
		return res, err
	}
	res.Resolved = resolved
	return res, nil
}

// Start schedules recurring sweeps with a cron spec such as "@every 1m".
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		res, err := s.SweepOnce(context.Background())
		if err != nil {
			log.Printf("sweep failed: %v", err)
			return
		}
		if len(res.Expired) > 0 || len(res.Woken) > 0 || res.Resolved > 0 {
			log.Printf("sweep: expired=%d woken=%d resolved=%d", len(res.Expired), len(res.Woken), res.Resolved)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
