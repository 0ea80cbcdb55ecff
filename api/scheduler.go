/*
scheduler.go - Background flush scheduler

PURPOSE:
  The ledger and reward store save best-effort: when the database is
  down a write is applied in memory and the state marked dirty. This
  scheduler periodically retries those dirty saves so an outage heals
  without restarting the process.

CONFIGURATION:
  - FlushInterval: How often to retry (config sync.flush_interval)

USAGE:
  scheduler := NewSyncScheduler(ledger, rewardStore, interval)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - progression/ledger.go: FlushDirty
  - rewards/store.go: FlushDirty
*/
package api

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
)

// SyncScheduler retries dirty state flushes on a fixed interval.
type SyncScheduler struct {
	ledger    *progression.Ledger
	rewards   *rewards.Store
	interval  time.Duration
	scheduler *gocron.Scheduler
}

// NewSyncScheduler creates a scheduler over the two dirty-tracking stores.
func NewSyncScheduler(ledger *progression.Ledger, rewardStore *rewards.Store, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		ledger:   ledger,
		rewards:  rewardStore,
		interval: interval,
	}
}

// Start begins the flush loop in the background.
func (s *SyncScheduler) Start() {
	s.scheduler = gocron.NewScheduler(time.UTC)
	s.scheduler.Every(s.interval).Do(s.flush)
	s.scheduler.StartAsync()
	log.Printf("[Scheduler] Started with flush interval: %v", s.interval)
}

// Stop halts the flush loop. Pending flushes finish.
func (s *SyncScheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *SyncScheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	flushed := s.ledger.FlushDirty(ctx)
	flushed += s.rewards.FlushDirty(ctx)
	if flushed > 0 {
		log.Printf("[Scheduler] Flushed %d dirty record(s)", flushed)
	}
}
