package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable is a store that can drop its expired entries
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper periodically removes expired entries from a store
type Sweeper struct {
	store    Sweepable
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSweeper creates a new sweeper
func NewSweeper(store Sweepable, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (s *Sweeper) Start() {
	go s.sweepLoop()
	s.logger.Info("Ticket sweeper started", zap.Duration("interval", s.interval))
}

// Stop ends the loop and waits for it to exit
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info("Ticket sweeper stopped")
	})
}

func (s *Sweeper) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	removed, err := s.store.Sweep(ctx)
	if err != nil {
		s.logger.Error("Failed to sweep expired tickets", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("Swept expired tickets", zap.Int("removed", removed))
	}
}
