package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// EntryCloser seeds every competition whose entry deadline has passed.
type EntryCloser interface {
	CloseExpiredEntries(ctx context.Context) (int, error)
}

// Sweeper periodically closes competitions that are past their entry deadline.
type Sweeper struct {
	scheduler gocron.Scheduler
	closer    EntryCloser
	logger    *slog.Logger
}

func NewSweeper(closer EntryCloser, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Sweeper{scheduler: scheduler, closer: closer, logger: logger}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("close-expired-entries"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule entry sweeper: %w", err)
	}

	return s, nil
}

func (s *Sweeper) Start() {
	s.scheduler.Start()
}

func (s *Sweeper) Shutdown() error {
	return s.scheduler.Shutdown()
}

func (s *Sweeper) sweep() {
	closed, err := s.closer.CloseExpiredEntries(context.Background())
	if err != nil {
		s.logger.Error("Entry sweep failed", "error", err)
		return
	}
	if closed > 0 {
		s.logger.Info("Closed competitions past their entry deadline", "count", closed)
	}
}
