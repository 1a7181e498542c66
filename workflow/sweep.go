package workflow

import (
	"log/slog"
	"time"

	"github.com/rewardhub/backend/metrics"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

// Sweeper resolves awards stuck in pending_onchain. A pending row with no
// transaction hash has nothing to confirm against on the ledger, so after
// maxAge it is resolved to failed; the duplicate guard then permits a fresh
// attempt.
type Sweeper struct {
	repo     *repository.Repository
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(repo *repository.Repository, logger *slog.Logger, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		repo:     repo,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.SweepOnce()
			}
		}
	}()
}

// Stop halts the loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// SweepOnce resolves every stale pending award. Returns the number of rows
// resolved.
func (s *Sweeper) SweepOnce() int {
	stale, repoErr := s.repo.StalePendingAwards(s.maxAge)
	if repoErr != nil {
		s.logger.Error("pending award sweep failed", "err", repoErr)
		return 0
	}
	resolved := 0
	for _, award := range stale {
		if repoErr := s.repo.ResolveAward(award.ID, models.AwardStatusFailed, nil); repoErr != nil {
			s.logger.Error("could not resolve stale award", "award", award.ID, "err", repoErr)
			continue
		}
		metrics.Awards.WithLabelValues(models.AwardStatusFailed).Inc()
		s.logger.Warn("stale pending award resolved as failed",
			"award", award.ID, "student", award.StudentID, "age", time.Since(award.CreatedAt).String())
		resolved++
	}
	return resolved
}
