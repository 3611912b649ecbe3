// Package scheduler drives periodic alert evaluation off a cron runner. Each
// alert gets one @every entry at its configured interval; a slow run skips
// the next tick instead of stacking.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TriggerFunc is invoked on each tick with the alert to evaluate
type TriggerFunc func(alertID string)

// CronScheduler schedules alert evaluations with a cron runner
type CronScheduler struct {
	cron    *cron.Cron
	trigger TriggerFunc
	entries map[string]cron.EntryID
	mu      sync.Mutex
}

// NewCronScheduler creates a scheduler. The trigger is called asynchronously
// by cron worker goroutines; panics inside it are recovered by the chain.
func NewCronScheduler(trigger TriggerFunc) *CronScheduler {
	return &CronScheduler{
		cron: cron.New(
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
		trigger: trigger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins dispatching ticks
func (s *CronScheduler) Start() {
	s.cron.Start()
	logrus.Info("Evaluation scheduler started")
}

// Stop stops the runner and waits for in-flight jobs
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logrus.Info("Evaluation scheduler stopped")
}

// Register adds or replaces the evaluation schedule for an alert
func (s *CronScheduler) Register(alertID string, intervalSeconds int) error {
	if intervalSeconds <= 0 {
		return fmt.Errorf("invalid evaluation interval %d for alert %s", intervalSeconds, alertID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[alertID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, alertID)
	}

	spec := fmt.Sprintf("@every %ds", intervalSeconds)
	entryID, err := s.cron.AddFunc(spec, func() {
		s.trigger(alertID)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule alert %s: %w", alertID, err)
	}
	s.entries[alertID] = entryID
	logrus.Infof("Scheduled alert %s every %ds", alertID, intervalSeconds)
	return nil
}

// Deregister removes the evaluation schedule for an alert. Removing an
// unknown alert is a no-op.
func (s *CronScheduler) Deregister(alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[alertID]
	if !ok {
		return nil
	}
	s.cron.Remove(entryID)
	delete(s.entries, alertID)
	logrus.Infof("Removed schedule for alert %s", alertID)
	return nil
}
