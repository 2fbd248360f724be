// Package scheduler gates repeatable units of work against a hard execution
// deadline, such as a serverless function's kill timer.
package scheduler

import (
	"time"

	"github.com/andres-erbsen/clock"
)

// Scheduler runs a task repeatedly only while the remaining budget exceeds
// the longest duration observed so far, so no invocation risks being killed
// mid-task by the external deadline.
//
// The first invocation always runs (the observed maximum starts at zero).
// Not safe for concurrent use; each job run owns one Scheduler.
type Scheduler struct {
	clk         clock.Clock
	deadline    time.Time
	maxObserved time.Duration
}

func New(clk clock.Clock, deadline time.Time) *Scheduler {
	return &Scheduler{clk: clk, deadline: deadline}
}

// Run executes task if budget remains. ran=false means the budget is
// exhausted; that is normal termination, not an error, and the caller should
// resume on its next scheduled run.
func (s *Scheduler) Run(task func() error) (ran bool, err error) {
	remaining := s.deadline.Sub(s.clk.Now())
	if remaining <= s.maxObserved {
		return false, nil
	}
	start := s.clk.Now()
	err = task()
	if d := s.clk.Now().Sub(start); d > s.maxObserved {
		s.maxObserved = d
	}
	return true, err
}

// MaxObserved returns the longest task duration seen so far.
func (s *Scheduler) MaxObserved() time.Duration { return s.maxObserved }
