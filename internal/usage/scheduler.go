package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the nightly reconciliation of the previous day.
type Scheduler struct {
	cron *cron.Cron
	agg  *Aggregator
	log  *slog.Logger

	// OnRun is called after every run; used for audit and metrics wiring.
	OnRun func(Summary, error)
}

func NewScheduler(agg *Aggregator, loc *time.Location, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		agg:  agg,
		log:  log,
	}
}

// Schedule registers the reconciliation job. An empty spec disables it.
func (s *Scheduler) Schedule(spec string) error {
	if spec == "" {
		s.log.Info("usage reconciliation schedule disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return err
	}
	s.log.Info("usage reconciliation scheduled", "cron", spec)
	return nil
}

func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	day := s.agg.Yesterday()
	sum, err := s.agg.Reconcile(ctx, day)
	if err != nil {
		s.log.Error("usage reconciliation failed", "date", day.Format(time.DateOnly), "err", err)
	} else {
		s.log.Info("usage reconciled", "date", sum.Date, "rows", sum.Rows, "calls", sum.Calls)
	}
	if s.OnRun != nil {
		s.OnRun(sum, err)
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
