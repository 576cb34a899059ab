package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = 5 * time.Minute

// SweeperService periodically expires overdue bots and reconciles registry
// drift. Its interval bounds how stale an expired-but-running worker can be.
type SweeperService struct {
	lifecycle *LifecycleService
	logger    *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSweeperService(lifecycle *LifecycleService, logger *zap.Logger) *SweeperService {
	return &SweeperService{
		lifecycle: lifecycle,
		logger:    logger,
		interval:  defaultSweepInterval,
		stopCh:    make(chan struct{}),
	}
}

func (s *SweeperService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *SweeperService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sweeper started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *SweeperService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *SweeperService) run(ctx context.Context) {
	expired, err := s.lifecycle.ExpireOverdue(ctx)
	if err != nil {
		s.logger.Error("expiration sweep failed", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("expiration sweep", zap.Int("expired", expired))
	}

	cleaned, err := s.lifecycle.CleanupStopped(ctx)
	if err != nil {
		s.logger.Error("cleanup sweep failed", zap.Error(err))
	} else if cleaned > 0 {
		s.logger.Info("cleanup sweep", zap.Int("cleaned", cleaned))
	}
}
