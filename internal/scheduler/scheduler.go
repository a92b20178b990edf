package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"sharpefeed/internal/cache"
	"sharpefeed/internal/quote"
)

// Scheduler manages periodic cache maintenance tasks.
type Scheduler struct {
	Cron    *cron.Cron
	Cache   cache.Maintainer
	Adapter *quote.Adapter
	Ctx     context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, m cache.Maintainer, ad *quote.Adapter) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Cache:   m,
		Adapter: ad,
		Ctx:     ctx,
	}
}

// RegisterAll registers the cleanup and stats tasks.
func (s *Scheduler) RegisterAll(cleanupCron, statsCron string) error {
	if _, err := s.Cron.AddFunc(cleanupCron, s.cleanupTask); err != nil {
		return fmt.Errorf("register cleanup task: %w", err)
	}
	if _, err := s.Cron.AddFunc(statsCron, s.statsTask); err != nil {
		return fmt.Errorf("register stats task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunCleanupNow executes the cleanup task immediately (for manual trigger).
func (s *Scheduler) RunCleanupNow() {
	s.cleanupTask()
}

func (s *Scheduler) cleanupTask() {
	removed, err := s.Cache.Cleanup(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] cache cleanup: %v", err)
		return
	}
	log.Printf("[INFO] cache cleanup removed %d expired entries", removed)
}

func (s *Scheduler) statsTask() {
	st := s.Cache.Stats(s.Ctx)
	log.Printf("[INFO] cache: %d memory / %d store entries, hit rate %.1f%%, oldest %s",
		st.MemoryEntries, st.StoreEntries, st.HitRate*100, st.OldestEntryAge.Round(time.Second))

	if s.Adapter != nil {
		as := s.Adapter.Stats()
		log.Printf("[INFO] source %s: %d calls, %d failures, %d retries, success %.1f%%, circuit %s",
			s.Adapter.SourceName(), as.Calls, as.Failures, as.Retries, as.SuccessRate*100, as.CircuitState)
	}
}
