// Package scheduler periodically refreshes feeds that are due.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"estuary/internal/logger"
	"estuary/internal/refresh"
	"estuary/internal/repository"
)

const (
	tickInterval       = time.Minute
	refreshConcurrency = 8
)

// Scheduler scans for due feeds once a minute and refreshes them with
// bounded concurrency. Feeds are independent, so one slow or failing
// feed never delays the rest of the batch beyond the worker limit.
type Scheduler struct {
	feeds  repository.FeedRepository
	engine *refresh.Engine

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func New(feeds repository.FeedRepository, engine *refresh.Engine) *Scheduler {
	return &Scheduler{
		feeds:  feeds,
		engine: engine,
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	logger.Info("scheduler started",
		"module", "scheduler", "action", "start", "resource", "scheduler", "result", "ok",
		"tick", tickInterval.String())
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	logger.Info("scheduler stopped",
		"module", "scheduler", "action", "stop", "resource", "scheduler", "result", "ok")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// First pass immediately so a restart doesn't wait a full tick.
	s.runPass()

	for {
		select {
		case <-ticker.C:
			s.runPass()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runPass() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Abort mid-pass on Stop.
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		logger.Error("scheduler pass failed",
			"module", "scheduler", "action", "pass", "resource", "scheduler", "result", "failed",
			"error", err)
	}
}

// RunOnce refreshes every due feed and returns how many were processed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.feeds.ListDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	logger.Debug("refreshing due feeds",
		"module", "scheduler", "action", "pass", "resource", "scheduler", "result", "ok",
		"count", len(due))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, feed := range due {
		g.Go(func() error {
			s.engine.Refresh(gctx, feed)
			return nil
		})
	}
	_ = g.Wait()
	return len(due), nil
}
