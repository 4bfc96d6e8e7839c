package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PurgeScheduler periodically archives expired lots for every owner.
type PurgeScheduler struct {
	inventory *InventoryService
	owners    []string
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	log       *logrus.Entry
}

// NewPurgeScheduler creates a purge scheduler. A zero interval defaults to
// one hour.
func NewPurgeScheduler(inventory *InventoryService, owners []string, interval time.Duration) *PurgeScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PurgeScheduler{
		inventory: inventory,
		owners:    owners,
		interval:  interval,
		stopCh:    make(chan struct{}),
		log:       logrus.WithField("component", "purge-scheduler"),
	}
}

// Start begins the purge loop.
func (s *PurgeScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.interval)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"interval": s.interval, "owners": len(s.owners)}).Info("started")
	go s.run()
}

func (s *PurgeScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stopCh:
			s.log.Info("stopped")
			return
		}
	}
}

// RunNow purges every owner once and returns the number of archived lots.
func (s *PurgeScheduler) RunNow(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	now := s.inventory.now()
	total := 0
	for _, owner := range s.owners {
		n, err := s.inventory.PurgeOwner(ctx, owner, now)
		total += n
		if err != nil {
			s.log.WithError(err).WithField("owner", owner).Error("purge failed")
		}
	}
	return total
}

// Stop stops the purge loop.
func (s *PurgeScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
