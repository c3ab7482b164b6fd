package leads

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// Sweeper periodically expires leads whose purchase window has closed.
type Sweeper struct {
	engine      *Engine
	repo        Repository
	logger      *logging.Logger
	interval    time.Duration
	batchSize   int
	concurrency int
}

func NewSweeper(engine *Engine, repo Repository, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		engine:      engine,
		repo:        repo,
		logger:      logger,
		interval:    time.Minute,
		batchSize:   100,
		concurrency: 4,
	}
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

func (s *Sweeper) WithConcurrency(n int) *Sweeper {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Start blocks, sweeping every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("lead expiry sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires one batch and returns how many leads moved to expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.repo.ListExpired(ctx, s.engine.now(), s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	results := make([]bool, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, lead := range due {
		i, lead := i, lead
		g.Go(func() error {
			expired, err := s.engine.ExpireLead(gctx, lead.ID)
			if err != nil {
				s.logger.ForLead(lead.ID).Warn("failed to expire lead", "error", err)
				return nil
			}
			results[i] = expired
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	count := 0
	for _, ok := range results {
		if ok {
			count++
		}
	}
	if count > 0 {
		s.logger.Info("expired leads", "count", count)
	}
	return count, nil
}
